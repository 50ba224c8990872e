package webhook

import (
	"errors"
	"testing"

	"github.com/joao-fontenele/account-storefront/internal/domain"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"full notification", `{"gateway":"MBBank","transferType":"in","transferAmount":150000,"content":"LQ1234567890 thanh toan","referenceCode":"FT1"}`, false},
		{"unknown fields ignored", `{"transferType":"in","extra":{"a":1}}`, false},
		{"empty body", ``, true},
		{"array body", `[1,2]`, true},
		{"not json", `transferType=in`, true},
		{"amount of wrong type", `{"transferAmount":"150000"}`, true},
		{"negative amount", `{"transferAmount":-1}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePayload([]byte(tt.raw))
			if tt.wantErr && !errors.Is(err, domain.ErrInvalidPayload) {
				t.Errorf("expected ErrInvalidPayload, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestPayload_OrderNumber(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		want    string
		wantOK  bool
	}{
		{"from content", Payload{Content: "MBVCB.123 LQ1234567890 thanh toan"}, "LQ1234567890", true},
		{"content wins over code", Payload{Content: "LQ1234567890", Code: "LQ9999999999"}, "LQ1234567890", true},
		{"falls back to code", Payload{Content: "chuyen tien", Code: " LQ9999999999 "}, "LQ9999999999", true},
		{"lowercase is not a match", Payload{Content: "lq1234567890"}, "", false},
		{"nothing usable", Payload{Content: "hello"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.payload.OrderNumber()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("OrderNumber() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestPayload_Incoming(t *testing.T) {
	for _, v := range []string{"in", "IN", " In "} {
		if !(Payload{TransferType: v}).Incoming() {
			t.Errorf("expected %q to be incoming", v)
		}
	}
	for _, v := range []string{"out", "", "inbound"} {
		if (Payload{TransferType: v}).Incoming() {
			t.Errorf("expected %q not to be incoming", v)
		}
	}
}
