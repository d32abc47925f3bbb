package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrInvalidBlockTag = errors.New("invalid block tag")

type tagKind uint8

// The zero BlockTag is Latest.
const (
	kindLatest tagKind = iota
	kindEarliest
	kindPending
	kindNumber
)

// BlockTag is a block bound: a concrete height or one of the symbolic
// markers earliest, latest and pending.
type BlockTag struct {
	kind   tagKind
	number uint64
}

var (
	Earliest = BlockTag{kind: kindEarliest}
	Latest   = BlockTag{kind: kindLatest}
	Pending  = BlockTag{kind: kindPending}
)

// BlockNumber returns a concrete block tag.
func BlockNumber(n uint64) BlockTag {
	return BlockTag{kind: kindNumber, number: n}
}

// Number returns the height of a concrete tag.
func (t BlockTag) Number() (uint64, bool) {
	return t.number, t.kind == kindNumber
}

func (t BlockTag) IsEarliest() bool { return t.kind == kindEarliest }
func (t BlockTag) IsLatest() bool   { return t.kind == kindLatest }
func (t BlockTag) IsPending() bool  { return t.kind == kindPending }

// Resolve maps the tag onto a height given the current head.
// pending resolves to the block after head.
func (t BlockTag) Resolve(head uint64) uint64 {
	switch t.kind {
	case kindNumber:
		return t.number
	case kindEarliest:
		return 0
	case kindPending:
		return head + 1
	default:
		return head
	}
}

func (t BlockTag) String() string {
	switch t.kind {
	case kindNumber:
		return hexutil.EncodeUint64(t.number)
	case kindEarliest:
		return "earliest"
	case kindPending:
		return "pending"
	default:
		return "latest"
	}
}

// ParseBlockTag parses "earliest", "latest", "pending", a 0x-prefixed hex
// quantity or a decimal height. "safe" and "finalized" are accepted as latest
// since every ingested block is final.
func ParseBlockTag(s string) (BlockTag, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "earliest":
		return Earliest, nil
	case "latest", "safe", "finalized", "":
		return Latest, nil
	case "pending":
		return Pending, nil
	}
	if rest, ok := strings.CutPrefix(s, "0x"); ok || strings.HasPrefix(s, "0X") {
		if !ok {
			rest = s[2:]
		}
		n, err := strconv.ParseUint(rest, 16, 64)
		if err != nil {
			return BlockTag{}, fmt.Errorf("%w: %q", ErrInvalidBlockTag, s)
		}
		return BlockNumber(n), nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return BlockTag{}, fmt.Errorf("%w: %q", ErrInvalidBlockTag, s)
	}
	return BlockNumber(n), nil
}

func (t BlockTag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *BlockTag) UnmarshalText(text []byte) error {
	parsed, err := ParseBlockTag(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// UnmarshalJSON accepts a JSON string or a bare JSON number.
func (t *BlockTag) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return t.UnmarshalText([]byte(s))
	}
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidBlockTag, data)
	}
	*t = BlockNumber(n)
	return nil
}
