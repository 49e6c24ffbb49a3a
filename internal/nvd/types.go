package nvd

// Response types for the NVD CVE API 2.0. Only the fields the importer
// consumes are mapped.

type cveResponse struct {
	ResultsPerPage  int       `json:"resultsPerPage"`
	StartIndex      int       `json:"startIndex"`
	TotalResults    int       `json:"totalResults"`
	Vulnerabilities []cveItem `json:"vulnerabilities"`
}

type cveItem struct {
	CVE cveRecord `json:"cve"`
}

type cveRecord struct {
	ID           string `json:"id"`
	Published    string `json:"published"`
	LastModified string `json:"lastModified"`

	Descriptions []struct {
		Lang  string `json:"lang"`
		Value string `json:"value"`
	} `json:"descriptions"`

	Metrics struct {
		CVSSMetricV31 []cvssMetric `json:"cvssMetricV31"`
		CVSSMetricV30 []cvssMetric `json:"cvssMetricV30"`
		CVSSMetricV2  []cvssMetric `json:"cvssMetricV2"`
	} `json:"metrics"`

	Configurations []struct {
		Nodes []struct {
			CPEMatch []struct {
				Vulnerable bool   `json:"vulnerable"`
				Criteria   string `json:"criteria"`
			} `json:"cpeMatch"`
		} `json:"nodes"`
	} `json:"configurations"`

	References []struct {
		URL string `json:"url"`
	} `json:"references"`
}

type cvssMetric struct {
	Source   string `json:"source"`
	Type     string `json:"type"`
	CVSSData struct {
		Version      string  `json:"version"`
		VectorString string  `json:"vectorString"`
		BaseScore    float64 `json:"baseScore"`
		BaseSeverity string  `json:"baseSeverity"`
	} `json:"cvssData"`
	// CVSS v2 carries severity outside cvssData
	BaseSeverity string `json:"baseSeverity"`
}
