package hidsvc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
)

// Address identifies a device as <backend>/<id>.
type Address struct {
	Backend string `yaml:"backend" json:"backend"`
	ID      string `yaml:"id" json:"id"`
}

func (a Address) String() string {
	return fmt.Sprintf("%s/%s", a.Backend, a.ID)
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Address) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var addr struct {
		Backend string `json:"backend"`
		ID      string `json:"id"`
	}
	err := json.Unmarshal(data, &addr)
	if err == nil {
		*a = Address{Backend: addr.Backend, ID: addr.ID}
		return nil
	}
	var s string
	err = json.Unmarshal(data, &s)
	if err != nil {
		return err
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Address) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(a.String())
}

func (a *Address) UnmarshalYAML(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var addr struct {
		Backend string `yaml:"backend"`
		ID      string `yaml:"id"`
	}
	err := yaml.Unmarshal(data, &addr)
	if err == nil {
		*a = Address{Backend: addr.Backend, ID: addr.ID}
		return nil
	}
	var s string
	err = yaml.Unmarshal(data, &s)
	if err != nil {
		return err
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses <backend>/<id>. Dots in the id are accepted in place
// of colons so addresses can be typed without quoting.
func ParseAddress(s string) (Address, error) {
	backend, id, ok := strings.Cut(s, "/")
	if !ok || backend == "" || id == "" || strings.Contains(id, "/") {
		return Address{}, fmt.Errorf("invalid address: %s", s)
	}
	return Address{
		Backend: backend,
		ID:      strings.ReplaceAll(id, ".", ":"),
	}, nil
}
