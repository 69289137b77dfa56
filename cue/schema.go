package cue

const typesStr = `
#File: {
	base64?:  string
	content?: string
	mode:     int & >=0 & <=0o7777 | *0o644
}

#Mount: {
	src:         string
	dest:        =~"^/"
	interpolate: bool | *false
}

#Container: {
	ports: [...int & >0 & <65536]
	labels: [string]: string | number | bool
	mounts: [...#Mount]
}

#Build: {
	copy: [...string]
	files: [string]: #File
}

#Image: {
	fetch?: string
	build?: #Build
	containers: [string]: #Container
}

#Duration: =~"^[0-9]+(ns|us|ms|s|m|h)$"

#Check: {
	http?: {
		url: string
		codes: [...int] | *[200]
		interval?: #Duration
		timeout?:  #Duration
	}
	tcp?: {
		address:   string
		interval?: #Duration
		timeout?:  #Duration
	}
}

#Template: {
	params: {...}
	images: [string]: #Image
	readiness: [...#Check]
}
`

const envTypesStr = `
#Env: {
	name:        string
	description: string | *""
	templates: [...{
		tpl: string
		parameters: {...}
	}]
	options: {
		keepAlive?:         #Duration
		buildTimeout?:      #Duration
		readinessTimeout?:  #Duration
		readinessInterval?: #Duration
		address?:           string
	}
}

#Duration: =~"^[0-9]+(ns|us|ms|s|m|h)$"
`

const skeletonStr = `// Parameters accepted by this template, with their defaults.
params: {
	port: int | *8080
}

images: "%[1]s": {
	build: {
		copy: ["Dockerfile"]
	}
	containers: "%[1]s": {
		ports: [params.port]
		labels: "%[1]s": "true"
	}
}

readiness: [{
	http: {
		url:   "http://{{.ExternalAddress}}:{{.ExposedContainerPort \"%[1]s\" \(params.port)}}/"
		codes: [200]
	}
}]
`
