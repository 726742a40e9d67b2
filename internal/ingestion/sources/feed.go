package sources

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/ingestion/ingesterr"
	"github.com/yungbote/mensa-backend/internal/platform/httpx"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

const (
	feedDateLayout = "02.01.2006"
	feedMaxBytes   = 16 << 20
)

type feedPacket struct {
	XMLName xml.Name     `xml:"DATAPACKET"`
	RowData *feedRowData `xml:"ROWDATA"`
}

type feedRowData struct {
	Rows []feedRow `xml:"ROW"`
}

// feedRow mirrors the upstream ROW attributes. It is comparable so exact
// duplicate rows can be collapsed with a map.
type feedRow struct {
	Venue       string `xml:"MENSA,attr"`
	Date        string `xml:"DATUM,attr"`
	Category    string `xml:"BEZEICHNUNG_KATEGORIE,attr"`
	Description string `xml:"BESCHREIBUNG,attr"`
	Markings    string `xml:"KENNZEICHNUNG,attr"`
	Nutrition   string `xml:"NAEHRWERTE,attr"`
	Notes       string `xml:"HINWEISE,attr"`

	PriceStudent     string `xml:"PREIS_STUDENT,attr"`
	PriceStaff       string `xml:"PREIS_BEDIENSTETER,attr"`
	PriceGuest       string `xml:"PREIS_GAST,attr"`
	PriceStudentCard string `xml:"PREIS_STUDENT_KARTE,attr"`
	PriceStaffCard   string `xml:"PREIS_BEDIENSTETER_KARTE,attr"`
	PriceGuestCard   string `xml:"PREIS_GAST_KARTE,attr"`

	CO2Value      string `xml:"EXTINFO_CO2_WERT,attr"`
	CO2Rating     string `xml:"EXTINFO_CO2_BEWERTUNG,attr"`
	CO2Savings    string `xml:"EXTINFO_CO2_EINSPARUNG,attr"`
	WaterValue    string `xml:"EXTINFO_WASSER_WERT,attr"`
	WaterRating   string `xml:"EXTINFO_WASSER_BEWERTUNG,attr"`
	AnimalWelfare string `xml:"EXTINFO_TIERWOHL,attr"`
	Rainforest    string `xml:"EXTINFO_REGENWALD,attr"`
}

func (r feedRow) prices() map[menu.Tier]string {
	out := map[menu.Tier]string{}
	for tier, v := range map[menu.Tier]string{
		menu.TierStudent:     r.PriceStudent,
		menu.TierStaff:       r.PriceStaff,
		menu.TierGuest:       r.PriceGuest,
		menu.TierStudentCard: r.PriceStudentCard,
		menu.TierStaffCard:   r.PriceStaffCard,
		menu.TierGuestCard:   r.PriceGuestCard,
	} {
		if strings.TrimSpace(v) != "" {
			out[tier] = v
		}
	}
	return out
}

// Feed reads the multi-venue XML menu feed.
type Feed struct {
	log    *logger.Logger
	name   string
	url    string
	venues map[string]bool
	deps   Deps
}

func NewFeed(log *logger.Logger, sc SourceConfig, deps Deps) *Feed {
	venues := map[string]bool{}
	for _, v := range sc.Venues {
		if v = strings.TrimSpace(v); v != "" {
			venues[v] = true
		}
	}
	return &Feed{
		log:    log.With("source", sc.Name, "kind", KindFeed),
		name:   sc.Name,
		url:    sc.URL,
		venues: venues,
		deps:   deps,
	}
}

func (f *Feed) Name() string { return f.name }

func (f *Feed) Fetch(ctx context.Context, day time.Time) ([]menu.RawMealEntry, error) {
	var body []byte
	err := httpx.Retry(ctx, f.log, httpx.Once("feed:"+f.name, f.deps.FeedTimeout, f.deps.Backoff), func(ctx context.Context) error {
		resp, err := httpx.Get(ctx, f.deps.Client, f.url, feedMaxBytes)
		if err != nil {
			return err
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		return nil, ingesterr.Fetch(f.name, "get", err)
	}

	packet, repair, err := parseFeed(body)
	if err != nil {
		return nil, ingesterr.Parse(f.name, "decode", err)
	}
	if repair != "" {
		f.log.Warn("Feed XML was malformed and has been recovered", "repair", repair, "rows", len(packet.RowData.Rows))
	}
	entries, stats := f.entriesFor(packet.RowData.Rows, menu.DayOf(day))
	f.log.Info("Feed parsed",
		"date", day.Format(menu.DayLayout),
		"rows", len(packet.RowData.Rows),
		"kept", len(entries),
		"skipped", stats.skipped,
		"duplicates", stats.duplicates,
	)
	return entries, nil
}

type feedStats struct {
	skipped    int
	duplicates int
}

func (f *Feed) entriesFor(rows []feedRow, day time.Time) ([]menu.RawMealEntry, feedStats) {
	var stats feedStats
	seen := map[feedRow]bool{}
	out := make([]menu.RawMealEntry, 0)
	for _, row := range rows {
		venue := strings.TrimSpace(row.Venue)
		rowDay, err := time.Parse(feedDateLayout, strings.TrimSpace(row.Date))
		if venue == "" || err != nil || strings.TrimSpace(row.Description) == "" {
			stats.skipped++
			continue
		}
		if !menu.DayOf(rowDay).Equal(day) {
			continue
		}
		if len(f.venues) > 0 && !f.venues[venue] {
			continue
		}
		prices := row.prices()
		if len(prices) == 0 {
			stats.skipped++
			continue
		}
		if seen[row] {
			stats.duplicates++
			continue
		}
		seen[row] = true
		out = append(out, menu.RawMealEntry{
			Source:      f.name,
			Venue:       venue,
			Date:        day,
			Description: row.Description,
			Category:    strings.TrimSpace(row.Category),
			Markings:    row.Markings,
			Prices:      prices,
			Nutrition:   row.Nutrition,
			Notes:       row.Notes,
			Sustainability: menu.Sustainability{
				CO2Value:       row.CO2Value,
				CO2Rating:      row.CO2Rating,
				CO2Savings:     row.CO2Savings,
				WaterValue:     row.WaterValue,
				WaterRating:    row.WaterRating,
				AnimalWelfare:  row.AnimalWelfare,
				RainforestSafe: row.Rainforest,
			},
		})
	}
	return out, stats
}

var rowElement = regexp.MustCompile(`(?s)<ROW\s[^>]*/>`)

// parseFeed decodes the feed, falling back to two recovery passes for
// truncated documents: closing the open elements, then salvaging every
// complete ROW element. repair names the pass that succeeded.
func parseFeed(body []byte) (*feedPacket, string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, "", errors.New("empty feed body")
	}
	pkt, err := decodeFeed(body)
	if err == nil {
		if pkt.RowData == nil {
			return nil, "", errors.New("missing ROWDATA element")
		}
		return pkt, "", nil
	}
	firstErr := err

	if pkt, err := decodeFeed(closeTruncated(body)); err == nil && pkt.RowData != nil {
		return pkt, "closed_tags", nil
	}

	rows := rowElement.FindAll(body, -1)
	if len(rows) == 0 {
		return nil, "", fmt.Errorf("unrecoverable feed xml: %w", firstErr)
	}
	var buf bytes.Buffer
	buf.WriteString("<DATAPACKET><ROWDATA>")
	for _, r := range rows {
		buf.Write(r)
	}
	buf.WriteString("</ROWDATA></DATAPACKET>")
	pkt, err = decodeFeed(buf.Bytes())
	if err != nil || pkt.RowData == nil {
		return nil, "", fmt.Errorf("unrecoverable feed xml: %w", firstErr)
	}
	return pkt, "salvaged_rows", nil
}

func decodeFeed(body []byte) (*feedPacket, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charsetReader
	var pkt feedPacket
	if err := dec.Decode(&pkt); err != nil {
		return nil, err
	}
	return &pkt, nil
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "utf-8", "utf8", "":
		return input, nil
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	case "iso-8859-15", "latin9":
		return charmap.ISO8859_15.NewDecoder().Reader(input), nil
	}
	return nil, fmt.Errorf("unsupported charset %q", label)
}

// closeTruncated drops a trailing partial element and appends whichever of
// the ROWDATA and DATAPACKET closing tags are missing.
func closeTruncated(body []byte) []byte {
	b := bytes.TrimSpace(body)
	if i := bytes.LastIndexByte(b, '>'); i >= 0 {
		b = b[:i+1]
	}
	out := append([]byte{}, b...)
	if !bytes.Contains(out, []byte("</ROWDATA>")) {
		out = append(out, "</ROWDATA>"...)
	}
	if !bytes.Contains(out, []byte("</DATAPACKET>")) {
		out = append(out, "</DATAPACKET>"...)
	}
	return out
}
