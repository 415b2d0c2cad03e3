package validator

import "testing"

func TestValidateTargetURL(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		allowLocal bool
		wantErr    bool
	}{
		{"Valid HTTPS", "https://crm.example.com/hooks", false, false},
		{"Valid HTTP", "http://crm.example.com/hooks", false, false},
		{"FTP Scheme", "ftp://example.com/hooks", false, true},
		{"Relative URL", "/hooks/inbound", false, true},
		{"Localhost Blocked In Prod", "https://localhost:3000/hooks", false, true},
		{"Localhost Subdomain Blocked", "https://api.localhost/hooks", false, true},
		{"Loopback IP Blocked", "http://127.0.0.1:8080/hooks", false, true},
		{"IPv6 Loopback Blocked", "http://[::1]/hooks", false, true},
		{"Unspecified IP Blocked", "http://0.0.0.0/hooks", false, true},
		{"Ngrok Tunnel Blocked", "https://abc123.ngrok-free.app/hooks", false, true},
		{"Cloudflare Tunnel Blocked", "https://demo.trycloudflare.com/hooks", false, true},
		{"Localtunnel Blocked", "https://demo.loca.lt/hooks", false, true},
		{"Localhost Allowed In Dev", "https://localhost:3000/hooks", true, false},
		{"Tunnel Allowed In Dev", "https://abc123.ngrok-free.app/hooks", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTargetURL(tt.url, tt.allowLocal)
			if tt.wantErr && err == nil {
				t.Errorf("Expected error for %s, got nil", tt.url)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected %s to be accepted, got %v", tt.url, err)
			}
		})
	}
}
