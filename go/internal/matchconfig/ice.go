package matchconfig

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/m-maciver/split-the-g/go/internal/match/events"
)

const defaultSTUN = "stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302"

type iceFile struct {
	ICEServers []events.ICEServer `yaml:"ice_servers"`
}

// iceServersFromEnv builds descriptors from STUN_URLS and the TURN_* variables
func iceServersFromEnv() []events.ICEServer {
	var servers []events.ICEServer

	if stun := splitList(getEnv("STUN_URLS", defaultSTUN)); len(stun) > 0 {
		servers = append(servers, events.ICEServer{URLs: stun})
	}
	if turn := splitList(getEnv("TURN_URL", "")); len(turn) > 0 {
		servers = append(servers, events.ICEServer{
			URLs:       turn,
			Username:   getEnv("TURN_USERNAME", ""),
			Credential: getEnv("TURN_CREDENTIAL", ""),
		})
	}
	return servers
}

// LoadICEServersFile appends the descriptors listed in ICEServersFile
func (c *Config) LoadICEServersFile() error {
	if c.ICEServersFile == "" {
		return nil
	}
	servers, err := loadICEServers(c.ICEServersFile)
	if err != nil {
		return err
	}
	c.ICEServers = append(c.ICEServers, servers...)
	return nil
}

func loadICEServers(path string) ([]events.ICEServer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ICE servers file: %w", err)
	}

	var f iceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse ICE servers file: %w", err)
	}
	for i, s := range f.ICEServers {
		if len(s.URLs) == 0 {
			return nil, fmt.Errorf("%w: ice_servers[%d] has no urls", ErrInvalidConfig, i)
		}
	}
	return f.ICEServers, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
