package api

// Links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var Links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/shell>; rel="shell"`,
		`</api/v1/datasets>; rel="datasets"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/features>; rel="features"`,
	},
	"/api/v1/datasets": {
		`</api/v1/features>; rel="features"`,
	},
	"/api/v1/features": {
		`</api/v1/datasets>; rel="datasets"`,
	},
	"/api/v1/panel/{session}/selection": {
		`</api/v1/shell>; rel="up"`,
	},
}
