package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const alphaVantageQuoteJSON = `{
	"Global Quote": {
		"01. symbol": "600519.SHH",
		"02. open": "1700.0000",
		"03. high": "1720.0000",
		"04. low": "1680.0000",
		"05. price": "1710.0000",
		"06. volume": "12345",
		"07. latest trading day": "2024-01-05",
		"08. previous close": "1690.0000",
		"09. change": "20.0000",
		"10. change percent": "1.1834%"
	}
}`

func TestAlphaVantageSymbol(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"sh600519", "600519.SHH"},
		{"sz000001", "000001.SHZ"},
		{"sz300750", "300750.SHZ"},
		{"ibm", "IBM"},
	}
	for _, tt := range tests {
		if got := alphaVantageSymbol(tt.input); got != tt.want {
			t.Errorf("alphaVantageSymbol(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAlphaVantageService_GetQuote(t *testing.T) {
	resetBreakers(t)

	var gotSymbol, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSymbol = r.URL.Query().Get("symbol")
		gotKey = r.URL.Query().Get("apikey")
		if fn := r.URL.Query().Get("function"); fn != "GLOBAL_QUOTE" {
			t.Errorf("function = %v, want GLOBAL_QUOTE", fn)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(alphaVantageQuoteJSON))
	}))
	defer server.Close()

	service := NewAlphaVantageService(server.URL, "configured-key", time.Second)
	quote, err := service.GetQuote(context.Background(), "sh600519", "run-key")
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	if gotSymbol != "600519.SHH" {
		t.Errorf("symbol = %v, want 600519.SHH", gotSymbol)
	}
	if gotKey != "run-key" {
		t.Errorf("apikey = %v, want the run credential", gotKey)
	}
	if quote.Symbol != "sh600519" {
		t.Errorf("Symbol = %v, want sh600519", quote.Symbol)
	}
	if !quote.Price.Equal(decimal.RequireFromString("1710")) {
		t.Errorf("Price = %v, want 1710", quote.Price)
	}
	if !quote.ChangePercent.Equal(decimal.RequireFromString("1.1834")) {
		t.Errorf("ChangePercent = %v, want 1.1834", quote.ChangePercent)
	}
	if quote.Volume != 12345 {
		t.Errorf("Volume = %d, want 12345", quote.Volume)
	}

	if _, err := service.GetQuote(context.Background(), "sh600519", ""); err != nil {
		t.Fatalf("GetQuote() with fallback key error = %v", err)
	}
	if gotKey != "configured-key" {
		t.Errorf("apikey = %v, want configured fallback", gotKey)
	}
}

func TestAlphaVantageService_MissingKey(t *testing.T) {
	service := NewAlphaVantageService("http://127.0.0.1:1", "", time.Second)
	if _, err := service.GetQuote(context.Background(), "sh600519", ""); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("GetQuote() error = %v, want ErrMissingAPIKey", err)
	}
}

func TestAlphaVantageService_Responses(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantNil  bool
		wantKind string
	}{
		{name: "unknown symbol", body: `{"Error Message": "Invalid API call."}`, wantNil: true},
		{name: "empty global quote", body: `{"Global Quote": {}}`, wantNil: true},
		{name: "rate limited", body: `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`, wantKind: "rate_limit"},
		{name: "bad key", body: `{"Information": "The **demo** API key is for demo purposes only."}`, wantKind: "auth_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetBreakers(t)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			quote, err := NewAlphaVantageService(server.URL, "", time.Second).GetQuote(context.Background(), "sh600519", "k")
			if tt.wantNil {
				if err != nil || quote != nil {
					t.Errorf("GetQuote() = %+v, %v, want nil, nil", quote, err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if got := categorizeAPIError(err); got != tt.wantKind {
				t.Errorf("categorizeAPIError() = %v, want %v", got, tt.wantKind)
			}
		})
	}
}
