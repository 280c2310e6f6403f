package keys

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Keyfile persists a keypair as a hex dump of the 64-byte private key in a
// single file. The file must not be readable by group or others; Load refuses
// to touch a key that is.
type Keyfile struct {
	mu   sync.Mutex
	path string
}

// NewKeyfile returns a Keyfile backed by path. The file need not exist yet.
func NewKeyfile(path string) *Keyfile {
	return &Keyfile{path: path}
}

// Load reads and parses the keypair. It fails if the file is missing, is not
// a hex key dump, or grants any permission beyond its owner.
func (k *Keyfile) Load() (*KeyPair, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	info, err := os.Stat(k.path)
	if err != nil {
		return nil, err
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		return nil, fmt.Errorf("keyfile %s is accessible by group or others (%o); chmod it to 0600", k.path, mode)
	}

	raw, err := os.ReadFile(k.path)
	if err != nil {
		return nil, err
	}

	dump, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("keyfile %s is not a hex key dump: %v", k.path, err)
	}

	return ParsePrivateKey(dump)
}

// Save writes the keypair, creating the parent directory as needed. The file
// is owner-only so a later Load accepts it.
func (k *Keyfile) Save(key *KeyPair) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(k.path), 0o700); err != nil {
		return err
	}

	dump := hex.EncodeToString(DumpPrivateKey(key.Private))

	return os.WriteFile(k.path, []byte(dump), 0o600)
}
