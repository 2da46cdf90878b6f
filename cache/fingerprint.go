package cache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// fieldSeparator cannot appear in a connection name or in printable SQL,
// so moving text between the three inputs always changes the digest input.
const fieldSeparator = "\x1f"

// Fingerprinter derives cache fingerprints for compiled queries.
type Fingerprinter struct {
	serializer KeySerializer
}

// NewFingerprinter builds a Fingerprinter. A nil serializer selects the default one.
func NewFingerprinter(serializer KeySerializer) *Fingerprinter {
	if serializer == nil {
		serializer = NewDefaultKeySerializer()
	}
	return &Fingerprinter{serializer: serializer}
}

// Fingerprint hashes the connection name, the compiled SQL text and the
// ordered bindings into a 16 character hex digest. The result is stable
// across processes for bindings with a deterministic serialization.
func (f *Fingerprinter) Fingerprint(connection, sql string, bindings []any) string {
	d := xxhash.New()
	_, _ = d.WriteString(connection)
	_, _ = d.WriteString(fieldSeparator)
	_, _ = d.WriteString(sql)
	_, _ = d.WriteString(fieldSeparator)
	_, _ = d.WriteString(f.serializer.SerializeKey(fmt.Sprintf("bindings[%d]", len(bindings)), bindings...))
	return fmt.Sprintf("%016x", d.Sum64())
}

var defaultFingerprinter = NewFingerprinter(nil)

// Fingerprint uses the default serializer.
func Fingerprint(connection, sql string, bindings []any) string {
	return defaultFingerprinter.Fingerprint(connection, sql, bindings)
}

// Key joins a namespace and a fingerprint into a store key.
func Key(namespace, fingerprint string) string {
	return namespace + KeySeparator + fingerprint
}

// NamespacePrefix is the key prefix shared by every entry of namespace.
func NamespacePrefix(namespace string) string {
	return namespace + KeySeparator
}
