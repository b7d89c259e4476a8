package efi

import (
	"crypto/rand"
	"strconv"
	"strings"
	"time"
)

const (
	txidMinLen = 26
	txidMaxLen = 35

	txidAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewTxID generates a gateway transaction identifier: 26 to 35 uppercase
// alphanumeric characters, unique per charge. The leading segment is the
// current time so identifiers sort roughly by creation order.
func NewTxID() string {
	var b strings.Builder
	b.WriteString("CF")
	b.WriteString(strings.ToUpper(strconv.FormatInt(time.Now().UnixNano(), 36)))

	suffix := make([]byte, txidMaxLen-b.Len())
	if _, err := rand.Read(suffix); err != nil {
		// crypto/rand never fails on supported platforms; pad
		// deterministically rather than return a short id.
		for i := range suffix {
			suffix[i] = 'X'
		}
	}
	for _, c := range suffix {
		b.WriteByte(txidAlphabet[int(c)%len(txidAlphabet)])
	}

	id := b.String()
	if len(id) > txidMaxLen {
		id = id[:txidMaxLen]
	}
	for len(id) < txidMinLen {
		id += "0"
	}
	return id
}
