package cue

// Go views of the leaves of a template. Images, containers and workspace
// files are walked field by field to keep declaration order; only their
// leaves are decoded.

type File struct {
	Base64  *string `json:"base64,omitempty"`
	Content *string `json:"content,omitempty"`
	Mode    uint32  `json:"mode"`
}

type Mount struct {
	Src         string `json:"src"`
	Dest        string `json:"dest"`
	Interpolate bool   `json:"interpolate"`
}

type Container struct {
	Ports  []int             `json:"ports"`
	Labels map[string]interface{} `json:"labels"`
	Mounts []Mount           `json:"mounts"`
}

type HTTPCheck struct {
	URL      string `json:"url"`
	Codes    []int  `json:"codes"`
	Interval string `json:"interval,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

type TCPCheck struct {
	Address  string `json:"address"`
	Interval string `json:"interval,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

type Check struct {
	HTTP *HTTPCheck `json:"http,omitempty"`
	TCP  *TCPCheck  `json:"tcp,omitempty"`
}
