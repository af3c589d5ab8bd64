// Package secrets keeps site login credentials in the OS keychain.
package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService groups the app's secrets in the OS keychain.
const KeyringService = "autoapply"

type login struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Keyring stores one username/password pair per site.
type Keyring struct {
	service string
}

func NewKeyring() *Keyring {
	return &Keyring{service: KeyringService}
}

func account(site string) string {
	return "site:" + site
}

// Credentials returns the stored login of site.
func (k *Keyring) Credentials(site string) (string, string, error) {
	raw, err := keyring.Get(k.service, account(site))
	if errors.Is(err, keyring.ErrNotFound) {
		return "", "", fmt.Errorf("no credentials stored for %s (run `autoapply sites login %s`)", site, site)
	}
	if err != nil {
		return "", "", fmt.Errorf("keyring lookup for %s: %w", site, err)
	}
	var l login
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return "", "", fmt.Errorf("keyring entry for %s is malformed: %w", site, err)
	}
	return l.Username, l.Password, nil
}

// Store saves the login of site, replacing any previous one.
func (k *Keyring) Store(site, username, password string) error {
	if strings.TrimSpace(site) == "" {
		return errors.New("site name is empty")
	}
	if strings.TrimSpace(username) == "" || password == "" {
		return errors.New("username and password are required")
	}
	data, err := json.Marshal(login{Username: username, Password: password})
	if err != nil {
		return err
	}
	return keyring.Set(k.service, account(site), string(data))
}

// Delete removes the login of site. Deleting a missing login is not an error.
func (k *Keyring) Delete(site string) error {
	err := keyring.Delete(k.service, account(site))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
