package matching

import (
	"fmt"
	"strings"
)

// ParseCPE extracts the vendor and product fields from a CPE 2.3 formatted
// string. Format:
// cpe:2.3:part:vendor:product:version:update:edition:language:sw_edition:target_sw:target_hw:other
func ParseCPE(cpe string) (vendor, product string, err error) {
	parts := strings.Split(cpe, ":")
	if len(parts) < 5 {
		return "", "", fmt.Errorf("invalid CPE format: %s", cpe)
	}
	return parts[3], parts[4], nil
}
