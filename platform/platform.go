// Package platform declares the closed set of deployment targets this SDK
// knows how to talk to, and the endpoint table baked in for each one.
package platform

import "fmt"

// Platform is a closed enum over the deployment targets the management and
// protocol token fetchers can address. Per spec, a PROTOCOL endpoint
// enumerator exists in the wild for a hypothetical GA platform but is not
// wired into this SDK; the enum stays closed over the variants actually
// referenced.
type Platform int

const (
	Prod Platform = iota
	ProdAz
	ProdLz
	NpLz
	Poc
)

func (p Platform) String() string {
	switch p {
	case Prod:
		return "prod"
	case ProdAz:
		return "prod-az"
	case ProdLz:
		return "prod-lz"
	case NpLz:
		return "np-lz"
	case Poc:
		return "poc"
	default:
		return fmt.Sprintf("platform(%d)", int(p))
	}
}

// Endpoints is the set of URLs and the realm name baked in for a Platform.
type Endpoints struct {
	Realm                string
	ManagementAPIBaseURL string
	ManagementTokenURL   string
	ProtocolRestTokenURL string
	MQTTTokenURL         string
}

var endpointTable = map[Platform]Endpoints{
	Prod: {
		Realm:                "prod",
		ManagementAPIBaseURL: "https://api.dsh-prod.dsh.marathon.mesos:4443",
		ManagementTokenURL:   "https://auth.prod.dsh-platform.example/auth/realms/prod/protocol/openid-connect/token",
		ProtocolRestTokenURL: "https://api.dsh-prod.dsh.marathon.mesos:4443/datastreams/v0/rest/token",
		MQTTTokenURL:         "https://api.dsh-prod.dsh.marathon.mesos:4443/datastreams/v0/mqtt/token",
	},
	ProdAz: {
		Realm:                "prod-az",
		ManagementAPIBaseURL: "https://api.dsh-prod-az.dsh.marathon.mesos:4443",
		ManagementTokenURL:   "https://auth.prod-az.dsh-platform.example/auth/realms/prod-az/protocol/openid-connect/token",
		ProtocolRestTokenURL: "https://api.dsh-prod-az.dsh.marathon.mesos:4443/datastreams/v0/rest/token",
		MQTTTokenURL:         "https://api.dsh-prod-az.dsh.marathon.mesos:4443/datastreams/v0/mqtt/token",
	},
	ProdLz: {
		Realm:                "prod-lz",
		ManagementAPIBaseURL: "https://api.dsh-prod-lz.dsh.marathon.mesos:4443",
		ManagementTokenURL:   "https://auth.prod-lz.dsh-platform.example/auth/realms/prod-lz/protocol/openid-connect/token",
		ProtocolRestTokenURL: "https://api.dsh-prod-lz.dsh.marathon.mesos:4443/datastreams/v0/rest/token",
		MQTTTokenURL:         "https://api.dsh-prod-lz.dsh.marathon.mesos:4443/datastreams/v0/mqtt/token",
	},
	NpLz: {
		Realm:                "np-lz",
		ManagementAPIBaseURL: "https://api.dsh-np-lz.dsh.marathon.mesos:4443",
		ManagementTokenURL:   "https://auth.np-lz.dsh-platform.example/auth/realms/np-lz/protocol/openid-connect/token",
		ProtocolRestTokenURL: "https://api.dsh-np-lz.dsh.marathon.mesos:4443/datastreams/v0/rest/token",
		MQTTTokenURL:         "https://api.dsh-np-lz.dsh.marathon.mesos:4443/datastreams/v0/mqtt/token",
	},
	Poc: {
		Realm:                "poc",
		ManagementAPIBaseURL: "https://api.dsh-poc.dsh.marathon.mesos:4443",
		ManagementTokenURL:   "https://auth.poc.dsh-platform.example/auth/realms/poc/protocol/openid-connect/token",
		ProtocolRestTokenURL: "https://api.dsh-poc.dsh.marathon.mesos:4443/datastreams/v0/rest/token",
		MQTTTokenURL:         "https://api.dsh-poc.dsh.marathon.mesos:4443/datastreams/v0/mqtt/token",
	},
}

// Endpoints returns the baked-in endpoint table for p. It only ever errors
// for a Platform value outside the closed enum, which cannot occur for
// values produced by Parse.
func (p Platform) Endpoints() (Endpoints, error) {
	e, ok := endpointTable[p]
	if !ok {
		return Endpoints{}, fmt.Errorf("platform: unknown platform %d", int(p))
	}
	return e, nil
}

// Parse maps a platform name (as it would appear in operator configuration)
// to its Platform value.
func Parse(name string) (Platform, error) {
	switch name {
	case "prod":
		return Prod, nil
	case "prod-az":
		return ProdAz, nil
	case "prod-lz":
		return ProdLz, nil
	case "np-lz":
		return NpLz, nil
	case "poc":
		return Poc, nil
	default:
		return 0, fmt.Errorf("platform: unrecognized platform %q", name)
	}
}
