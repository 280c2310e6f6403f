package keys

import (
	"encoding/hex"
	"os"
	"path"
	"reflect"
	"testing"
)

func TestKeyfile(t *testing.T) {
	dir, err := os.MkdirTemp("", "murmur")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	keyfile := NewKeyfile(path.Join(dir, "priv_key"))

	// loading before saving anything must fail
	key, err := keyfile.Load()
	if err == nil {
		t.Fatalf("Load should fail on a missing file")
	}
	if key != nil {
		t.Fatalf("key is not nil")
	}

	key, _ = GenerateKeyPair()

	if err := keyfile.Save(key); err != nil {
		t.Fatalf("err: %v", err)
	}

	nKey, err := keyfile.Load()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !reflect.DeepEqual(*nKey, *key) {
		t.Fatalf("Keys do not match")
	}

	// garbage content must not parse
	garbagePath := path.Join(dir, "garbage")
	os.WriteFile(garbagePath, []byte("not a key"), 0600)
	if _, err := NewKeyfile(garbagePath).Load(); err == nil {
		t.Fatalf("Load should reject a non-hex keyfile")
	}
}

func TestFilePermissions(t *testing.T) {
	dir, err := os.MkdirTemp("", "murmur")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	// Initialize a key and try a write
	key, _ := GenerateKeyPair()
	rawKey := hex.EncodeToString(DumpPrivateKey(key.Private))

	badKeyPath := path.Join(dir, "priv_key_bad")

	// random selection of permissions that should not be accepted. There might
	// be a more clever way to build this list.
	shouldErr := []os.FileMode{
		0777, 0766, 0744,
		0677, 0666, 0644,
		0477, 0466, 0444,
	}

	for _, fm := range shouldErr {
		os.WriteFile(badKeyPath, []byte(rawKey), fm)
		// WriteFile only applies the mode when it creates the file
		os.Chmod(badKeyPath, fm)

		if _, err := NewKeyfile(badKeyPath).Load(); err == nil {
			t.Fatalf("%o || Load should return a permissions error", fm)
		}
	}

	goodKeyPath := path.Join(dir, "priv_key_good")

	// random selection of permissions that should pass
	shouldNotErr := []os.FileMode{
		0700, 0600, 0500, 0400,
	}

	for _, fm := range shouldNotErr {
		os.WriteFile(goodKeyPath, []byte(rawKey), fm)
		os.Chmod(goodKeyPath, fm)

		if _, err := NewKeyfile(goodKeyPath).Load(); err != nil {
			t.Fatalf("%o || Load should not return an error. Got %v", fm, err)
		}
	}
}

func TestSignVerify(t *testing.T) {
	key, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	msg := []byte("J'aime mieux forger mon ame que la meubler")

	sig, err := Sign(key.Private, msg)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !Verify(key.Public, msg, sig) {
		t.Fatalf("signature should verify")
	}

	msg[0] ^= 0xff
	if Verify(key.Public, msg, sig) {
		t.Fatalf("signature should not verify modified message")
	}

	other, _ := GenerateKeyPair()
	msg[0] ^= 0xff
	if Verify(other.Public, msg, sig) {
		t.Fatalf("signature should not verify under another key")
	}
}

func TestSignatureEncoding(t *testing.T) {
	key, _ := GenerateKeyPair()

	sig, err := Sign(key.Private, []byte("payload"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	encodedSig := EncodeSignature(sig)

	decoded, err := DecodeSignature(encodedSig)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !reflect.DeepEqual(sig, decoded) {
		t.Fatalf("decoded signature does not match")
	}

	if _, err := DecodeSignature("abcd"); err == nil {
		t.Fatalf("short signature should not decode")
	}
}
