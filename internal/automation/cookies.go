package automation

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// CookieJar persists the exported session as a JSON file.
type CookieJar struct {
	path string
}

func NewCookieJar(path string) *CookieJar {
	return &CookieJar{path: path}
}

func (j *CookieJar) Path() string {
	return j.path
}

// Load returns nil without error when no session was saved.
func (j *CookieJar) Load() ([]Cookie, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, err
	}
	return cookies, nil
}

func (j *CookieJar) Save(cookies []Cookie) error {
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0700); err != nil {
		return err
	}
	return os.WriteFile(j.path, data, 0600)
}

// Remove deletes the saved session and reports whether one existed.
func (j *CookieJar) Remove() (bool, error) {
	err := os.Remove(j.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
