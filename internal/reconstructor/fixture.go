package reconstructor

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// FixtureService answers from a YAML file of canned replies. Each entry
// matches when its substring occurs in the raw text; the first match wins and
// an entry with an empty match is the default. Used for offline demos and tests.
type FixtureService struct {
	entries []fixtureEntry
}

type fixtureEntry struct {
	Match    string         `yaml:"match"`
	Response map[string]any `yaml:"response"`
}

type fixtureFile struct {
	Fixtures []fixtureEntry `yaml:"fixtures"`
}

// LoadFixtures reads a fixture file.
func LoadFixtures(path string) (*FixtureService, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "reconstructor: read fixtures %s", path)
	}
	return ParseFixtures(data)
}

// ParseFixtures parses fixture YAML.
func ParseFixtures(data []byte) (*FixtureService, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "reconstructor: parse fixtures")
	}
	if len(f.Fixtures) == 0 {
		return nil, eris.New("reconstructor: fixture file has no fixtures")
	}
	return &FixtureService{entries: f.Fixtures}, nil
}

// Reconstruct returns the first fixture whose match occurs in the raw text.
func (s *FixtureService) Reconstruct(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "reconstructor: fixture")
	}
	for _, e := range s.entries {
		if e.Match != "" && !strings.Contains(req.RawText, e.Match) {
			continue
		}
		// Round-trip through JSON so fixtures go through the same validation
		// as live replies.
		data, err := json.Marshal(e.Response)
		if err != nil {
			return nil, eris.Wrap(err, "reconstructor: encode fixture")
		}
		return DecodeResponse(data)
	}
	return nil, eris.Errorf("reconstructor: no fixture matches input")
}
