package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/mensa-backend/internal/platform/ctxutil"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
	"github.com/yungbote/mensa-backend/internal/services"
)

func TestCORSAllowsLocalDevOrigins(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	origins := []string{
		"http://localhost:5173",
		"http://127.0.0.1:5173",
	}

	for _, origin := range origins {
		origin := origin
		t.Run(origin, func(t *testing.T) {
			t.Parallel()
			r := gin.New()
			r.Use(CORS(nil))
			r.OPTIONS("/api/meals", func(c *gin.Context) {
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodOptions, "/api/meals", nil)
			req.Header.Set("Origin", origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != http.StatusNoContent {
				t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusNoContent)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != origin {
				t.Fatalf("unexpected allow-origin header: got=%q want=%q", got, origin)
			}
		})
	}
}

func TestAttachVoterIssuesAndReusesCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens, err := services.NewVoterTokenService(logger.Nop(), "secret", time.Hour)
	if err != nil {
		t.Fatalf("NewVoterTokenService: %v", err)
	}
	vm := NewVoterMiddleware(logger.Nop(), tokens, false)

	r := gin.New()
	r.Use(vm.AttachVoter())
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, ctxutil.Voter(c.Request.Context()))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	first := rec.Body.String()
	cookies := rec.Result().Cookies()
	if first == "" || len(cookies) != 1 || cookies[0].Name != VoterCookie || !cookies[0].HttpOnly {
		t.Fatalf("expected fresh voter cookie, got body=%q cookies=%v", first, cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Body.String() != first {
		t.Fatalf("voter changed: %q vs %q", rec.Body.String(), first)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("valid cookie should not be reissued")
	}

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: VoterCookie, Value: "tampered"})
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Body.String() == first || len(rec.Result().Cookies()) != 1 {
		t.Fatalf("tampered cookie should be replaced")
	}
}

func TestRequireToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		secret string
		header string
		value  string
		want   int
	}{
		{name: "disabled", secret: "", header: "X-Ingest-Token", value: "x", want: http.StatusForbidden},
		{name: "missing", secret: "s3cret", want: http.StatusUnauthorized},
		{name: "wrong", secret: "s3cret", header: "X-Ingest-Token", value: "nope", want: http.StatusUnauthorized},
		{name: "header", secret: "s3cret", header: "X-Ingest-Token", value: "s3cret", want: http.StatusNoContent},
		{name: "bearer", secret: "s3cret", header: "Authorization", value: "Bearer s3cret", want: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.POST("/ingest", RequireToken(tc.secret), func(c *gin.Context) { c.Status(http.StatusNoContent) })
			req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader("{}"))
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status %d want %d", rec.Code, tc.want)
			}
		})
	}
}
