package hubs

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func NewHubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hub",
		Short: "Saved hub credentials",
		Long:  "Manage the hosting endpoints and tokens saved in ~/.nemopub/hubs.json",
	}
	cmd.AddCommand(NewHubLoginCmd())
	cmd.AddCommand(NewHubListCmd())
	cmd.AddCommand(NewHubRemoveCmd())
	return cmd
}

type HubFile struct {
	Hubs []HubDetails `json:"hubs,omitempty"`
}

type HubDetails struct {
	Name  string `json:"name,omitempty"`
	URL   string `json:"url,omitempty"`
	User  string `json:"user,omitempty"`
	Token string `json:"token,omitempty"`
}

// DefaultHubManager resolves its file under the home directory on each access.
var DefaultHubManager = &HubManager{}

type HubManager struct {
	Path string // empty means ~/.nemopub/hubs.json
	hubs HubFile
}

func DefaultHubFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".nemopub", "hubs.json")
	}
	return filepath.Join(home, ".nemopub", "hubs.json")
}

func (m *HubManager) path() string {
	if m.Path == "" {
		return DefaultHubFile()
	}
	return m.Path
}

func (m *HubManager) Set(item HubDetails) error {
	if _, err := url.ParseRequestURI(item.URL); err != nil {
		return fmt.Errorf("invalid url: %s", item.URL)
	}
	item.URL = strings.TrimSuffix(item.URL, "/")
	if item.Name == "" {
		item.Name = item.URL
	}
	if err := m.load(); err != nil {
		return err
	}
	for i, hub := range m.hubs.Hubs {
		if hub.Name == item.Name {
			m.hubs.Hubs[i] = item
			return m.save()
		}
	}
	m.hubs.Hubs = append(m.hubs.Hubs, item)
	return m.save()
}

func (m *HubManager) Get(name string) (HubDetails, error) {
	if err := m.load(); err != nil {
		return HubDetails{}, err
	}
	for _, hub := range m.hubs.Hubs {
		if hub.Name == name || hub.URL == strings.TrimSuffix(name, "/") {
			return hub, nil
		}
	}
	return HubDetails{}, fmt.Errorf("hub %s not found", name)
}

func (m *HubManager) Remove(name string) error {
	if err := m.load(); err != nil {
		return err
	}
	for i, hub := range m.hubs.Hubs {
		if hub.Name == name || hub.URL == name {
			m.hubs.Hubs = append(m.hubs.Hubs[:i], m.hubs.Hubs[i+1:]...)
			return m.save()
		}
	}
	return fmt.Errorf("hub %s not found", name)
}

func (m *HubManager) List() []HubDetails {
	if err := m.load(); err != nil {
		return []HubDetails{}
	}
	return m.hubs.Hubs
}

// TokenFor returns the saved token of the endpoint, empty when there is none.
func (m *HubManager) TokenFor(endpoint string) string {
	details, err := m.Get(endpoint)
	if err != nil {
		return ""
	}
	return details.Token
}

func (m *HubManager) load() error {
	m.hubs = HubFile{}
	content, err := os.ReadFile(m.path())
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		content = []byte("{}")
	}
	return json.Unmarshal(content, &m.hubs)
}

func (m *HubManager) save() error {
	path := m.path()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	content, err := json.MarshalIndent(m.hubs, "", "  ")
	if err != nil {
		return err
	}
	// holds tokens
	return os.WriteFile(path, content, 0o600)
}
