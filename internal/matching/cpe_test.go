package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCPE(t *testing.T) {
	tests := []struct {
		name        string
		cpe         string
		wantVendor  string
		wantProduct string
		wantErr     bool
	}{
		{
			name:        "full 2.3 criteria",
			cpe:         "cpe:2.3:a:acme:scanner-9000:3.1:*:*:*:*:*:*:*",
			wantVendor:  "acme",
			wantProduct: "scanner-9000",
		},
		{
			name:        "minimal five segments",
			cpe:         "cpe:2.3:o:microsoft:windows_7",
			wantVendor:  "microsoft",
			wantProduct: "windows_7",
		},
		{
			name:    "too few segments",
			cpe:     "cpe:2.3:a:acme",
			wantErr: true,
		},
		{
			name:    "empty string",
			cpe:     "",
			wantErr: true,
		},
		{
			name:        "wildcard vendor kept as-is",
			cpe:         "cpe:2.3:h:*:infusion_pump:1.0",
			wantVendor:  "*",
			wantProduct: "infusion_pump",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vendor, product, err := ParseCPE(tt.cpe)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVendor, vendor)
			assert.Equal(t, tt.wantProduct, product)
		})
	}
}
