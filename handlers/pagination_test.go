package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func paginationContext(t *testing.T, rawQuery string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?"+rawQuery, nil)
	return c
}

func TestParsePageDefaults(t *testing.T) {
	p := ParsePage(paginationContext(t, ""))
	if p.Number != 1 || p.Limit != DefaultLimit {
		t.Errorf("ParsePage() = %+v, want page 1 limit %d", p, DefaultLimit)
	}
}

func TestParsePageValues(t *testing.T) {
	p := ParsePage(paginationContext(t, "page=3&limit=25"))
	if p.Number != 3 || p.Limit != 25 {
		t.Errorf("ParsePage() = %+v, want page 3 limit 25", p)
	}
}

func TestParsePageCapsLimit(t *testing.T) {
	p := ParsePage(paginationContext(t, "limit=9999"))
	if p.Limit != MaxLimit {
		t.Errorf("Limit = %d, want cap %d", p.Limit, MaxLimit)
	}
}

func TestParsePageIgnoresGarbage(t *testing.T) {
	p := ParsePage(paginationContext(t, "page=zero&limit=-5"))
	if p.Number != 1 || p.Limit != DefaultLimit {
		t.Errorf("ParsePage() = %+v, want defaults for garbage input", p)
	}
}
