package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/ingestion/ingesterr"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<DATAPACKET Version="2.0">
  <ROWDATA>
    <ROW MENSA="Hauptmensa" DATUM="15.10.2025" BEZEICHNUNG_KATEGORIE="Essen 1"
         BESCHREIBUNG="Erbsensuppe mit Brot" KENNZEICHNUNG="v, 26"
         PREIS_STUDENT="2,50" PREIS_BEDIENSTETER="3,80" PREIS_GAST="5,00"
         NAEHRWERTE="Brennwert=2092 kJ (500 kcal), Fett=12,0g, Eiweiß=20,0g"
         EXTINFO_CO2_WERT="583,00" EXTINFO_CO2_BEWERTUNG="A"/>
    <ROW MENSA="Hauptmensa" DATUM="15.10.2025" BESCHREIBUNG="" PREIS_STUDENT="4,00"/>
    <ROW MENSA="Hauptmensa" DATUM="15.10.2025" BESCHREIBUNG="   " PREIS_STUDENT="6,00"/>
    <ROW MENSA="Hauptmensa" DATUM="15.10.2025" BESCHREIBUNG="Kein Preis"/>
    <ROW MENSA="Contine" DATUM="15.10.2025" BESCHREIBUNG="Caesar Salad" PREIS_STUDENT="4,00"/>
    <ROW MENSA="Contine" DATUM="15.10.2025" BESCHREIBUNG="Caesar Salad" PREIS_STUDENT="4,00"/>
    <ROW MENSA="Hauptmensa" DATUM="16.10.2025" BESCHREIBUNG="Tomorrow" PREIS_STUDENT="7,00"/>
  </ROWDATA>
</DATAPACKET>`

var day = time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)

func feedServer(t *testing.T, body string, status int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestFeed(url string, venues ...string) *Feed {
	return NewFeed(logger.Nop(), SourceConfig{Name: "feed", Kind: KindFeed, URL: url, Venues: venues},
		Deps{Client: http.DefaultClient, Backoff: time.Millisecond})
}

func TestFeedFetchFiltersAndCollapses(t *testing.T) {
	srv, _ := feedServer(t, feedXML, http.StatusOK)
	entries, err := newTestFeed(srv.URL).Fetch(context.Background(), day)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}
	e := entries[0]
	if e.Venue != "Hauptmensa" || e.Category != "Essen 1" || e.Prices[menu.TierStudent] != "2,50" || e.Prices[menu.TierStaff] != "3,80" || e.Prices[menu.TierGuest] != "5,00" {
		t.Fatalf("unexpected first entry: %+v", e)
	}
	if _, ok := e.Prices[menu.TierStudentCard]; ok {
		t.Fatalf("blank tiers must be absent")
	}
	if e.Sustainability.CO2Value != "583,00" || e.Source != "feed" || !e.Date.Equal(day) {
		t.Fatalf("unexpected metadata: %+v", e)
	}
}

func TestFeedReadsStaffAndGuestTiers(t *testing.T) {
	body := `<DATAPACKET><ROWDATA>
<ROW MENSA="Hauptmensa" DATUM="15.10.2025" BESCHREIBUNG="Gulasch" PREIS_BEDIENSTETER="4,20" PREIS_GAST="6,10" PREIS_BEDIENSTETER_KARTE="4,00" PREIS_GAST_KARTE="5,90"/>
</ROWDATA></DATAPACKET>`
	srv, _ := feedServer(t, body, http.StatusOK)
	entries, err := newTestFeed(srv.URL).Fetch(context.Background(), day)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("a row with only staff and guest prices must survive, got %+v", entries)
	}
	want := map[menu.Tier]string{
		menu.TierStaff:     "4,20",
		menu.TierGuest:     "6,10",
		menu.TierStaffCard: "4,00",
		menu.TierGuestCard: "5,90",
	}
	for tier, price := range want {
		if got := entries[0].Prices[tier]; got != price {
			t.Fatalf("tier %s: got %q want %q", tier, got, price)
		}
	}
	if _, ok := entries[0].Prices[menu.TierStudent]; ok {
		t.Fatalf("student tier must be absent: %+v", entries[0].Prices)
	}
}

func TestFeedVenueFilter(t *testing.T) {
	srv, _ := feedServer(t, feedXML, http.StatusOK)
	entries, err := newTestFeed(srv.URL, "Contine").Fetch(context.Background(), day)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(entries) != 1 || entries[0].Description != "Caesar Salad" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestFeedRecoversTruncatedXML(t *testing.T) {
	truncated := `<DATAPACKET><ROWDATA>
<ROW MENSA="Hauptmensa" DATUM="15.10.2025" BESCHREIBUNG="Linsen" PREIS_STUDENT="3,10"/>
<ROW MENSA="Hauptmensa" DATUM="15.10.2025" BESCHREI`
	srv, _ := feedServer(t, truncated, http.StatusOK)
	entries, err := newTestFeed(srv.URL).Fetch(context.Background(), day)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(entries) != 1 || entries[0].Description != "Linsen" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestParseFeedSalvagesRows(t *testing.T) {
	broken := `<DATAPACKET><ROWDATA><ROW MENSA="A" DATUM="15.10.2025" BESCHREIBUNG="Eins" PREIS_STUDENT="1,00"/>
<JUNK><ROW MENSA="A" DATUM="15.10.2025" BESCHREIBUNG="Zwei" PREIS_STUDENT="2,00"/></ROWDATA>`
	pkt, repair, err := parseFeed([]byte(broken))
	if err != nil {
		t.Fatalf("parseFeed: %v", err)
	}
	if repair != "salvaged_rows" || len(pkt.RowData.Rows) != 2 {
		t.Fatalf("repair=%s rows=%d", repair, len(pkt.RowData.Rows))
	}
}

func TestFeedParseErrors(t *testing.T) {
	cases := map[string]string{
		"missing rowdata": `<DATAPACKET Version="2.0"></DATAPACKET>`,
		"garbage":         `this is not xml at all`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv, _ := feedServer(t, body, http.StatusOK)
			_, err := newTestFeed(srv.URL).Fetch(context.Background(), day)
			if !errors.Is(err, ingesterr.ErrParse) || !errors.Is(err, ingesterr.ErrFetch) {
				t.Fatalf("expected parse error matching fetch, got %v", err)
			}
		})
	}
}

func TestFeedUpstreamFailureRetriedOnce(t *testing.T) {
	srv, hits := feedServer(t, "boom", http.StatusBadGateway)
	_, err := newTestFeed(srv.URL).Fetch(context.Background(), day)
	if !errors.Is(err, ingesterr.ErrFetch) || errors.Is(err, ingesterr.ErrParse) {
		t.Fatalf("expected plain fetch error, got %v", err)
	}
	if got := atomic.LoadInt32(hits); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestCharsetReaderLatin1(t *testing.T) {
	body := append([]byte(`<?xml version="1.0" encoding="ISO-8859-1"?><DATAPACKET><ROWDATA><ROW MENSA="A" DATUM="15.10.2025" BESCHREIBUNG="Gem`), 0xfc)
	body = append(body, []byte(`se" PREIS_STUDENT="1,00"/></ROWDATA></DATAPACKET>`)...)
	pkt, _, err := parseFeed(body)
	if err != nil {
		t.Fatalf("parseFeed: %v", err)
	}
	if got := pkt.RowData.Rows[0].Description; got != "Gemüse" {
		t.Fatalf("got %q", got)
	}
}
