package utm

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CheckpointKind tags which source-kind variant a Checkpoint carries.
// These are also the wire-format kind prefixes.
type CheckpointKind string

const (
	CheckpointMySQLGTID     CheckpointKind = "mysql_gtid"
	CheckpointMySQLBinlog   CheckpointKind = "mysql_binlog"
	CheckpointPostgresSeq   CheckpointKind = "postgresql_seq"
	CheckpointPostgresLSN   CheckpointKind = "postgresql_lsn"
	CheckpointMongoDB       CheckpointKind = "mongodb"
	CheckpointNeo4j         CheckpointKind = "neo4j_ts"
)

// Checkpoint is the sum type over per-source resumption tokens. Only the
// fields relevant to Kind are meaningful.
type Checkpoint struct {
	Kind CheckpointKind
	Ts   time.Time

	GTIDSet    string // mysql_gtid
	BinlogFile string // mysql_binlog
	BinlogPos  uint32 // mysql_binlog

	SequenceID int64  // postgresql_seq
	LSN        string // postgresql_lsn, format "<hi>/<lo>" hex

	ResumeToken string // mongodb, opaque

	TimestampMS int64 // neo4j_ts
}

// String renders the wire form "<kind>:<payload>". Parsing must
// round-trip every produced form.
func (c Checkpoint) String() string {
	switch c.Kind {
	case CheckpointMySQLGTID:
		return fmt.Sprintf("%s:%s", CheckpointMySQLGTID, c.GTIDSet)
	case CheckpointMySQLBinlog:
		return fmt.Sprintf("%s:%s:%d", CheckpointMySQLBinlog, c.BinlogFile, c.BinlogPos)
	case CheckpointPostgresSeq:
		return fmt.Sprintf("%s:%d", CheckpointPostgresSeq, c.SequenceID)
	case CheckpointPostgresLSN:
		return fmt.Sprintf("%s:%s", CheckpointPostgresLSN, c.LSN)
	case CheckpointMongoDB:
		return fmt.Sprintf("%s:%s", CheckpointMongoDB, c.ResumeToken)
	case CheckpointNeo4j:
		return fmt.Sprintf("%s:%d", CheckpointNeo4j, c.TimestampMS)
	default:
		return ""
	}
}

// ParseCheckpoint parses the wire form produced by String back into a
// Checkpoint. It is a pure function.
func ParseCheckpoint(s string) (Checkpoint, error) {
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return Checkpoint{}, fmt.Errorf("malformed checkpoint %q: missing kind separator", s)
	}
	kind := CheckpointKind(s[:idx])
	payload := s[idx+1:]

	switch kind {
	case CheckpointMySQLGTID:
		if payload == "" {
			return Checkpoint{}, fmt.Errorf("malformed mysql_gtid checkpoint %q: empty gtid set", s)
		}
		return Checkpoint{Kind: kind, GTIDSet: payload}, nil
	case CheckpointMySQLBinlog:
		lastColon := strings.LastIndexByte(payload, ':')
		if lastColon < 0 {
			return Checkpoint{}, fmt.Errorf("malformed mysql_binlog checkpoint %q", s)
		}
		pos, err := strconv.ParseUint(payload[lastColon+1:], 10, 32)
		if err != nil {
			return Checkpoint{}, fmt.Errorf("malformed mysql_binlog position in %q: %w", s, err)
		}
		return Checkpoint{Kind: kind, BinlogFile: payload[:lastColon], BinlogPos: uint32(pos)}, nil
	case CheckpointPostgresSeq:
		seq, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return Checkpoint{}, fmt.Errorf("malformed postgresql_seq checkpoint %q: %w", s, err)
		}
		return Checkpoint{Kind: kind, SequenceID: seq}, nil
	case CheckpointPostgresLSN:
		if payload == "" {
			return Checkpoint{}, fmt.Errorf("malformed postgresql_lsn checkpoint %q: empty lsn", s)
		}
		return Checkpoint{Kind: kind, LSN: payload}, nil
	case CheckpointMongoDB:
		return Checkpoint{Kind: kind, ResumeToken: payload}, nil
	case CheckpointNeo4j:
		ms, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return Checkpoint{}, fmt.Errorf("malformed neo4j_ts checkpoint %q: %w", s, err)
		}
		return Checkpoint{Kind: kind, TimestampMS: ms}, nil
	default:
		return Checkpoint{}, fmt.Errorf("unknown checkpoint kind %q in %q", kind, s)
	}
}

// lsnValue parses a PostgreSQL "<hi>/<lo>" hex LSN into a single
// comparable uint64, as pglogrepl.LSN does internally.
func lsnValue(lsn string) (uint64, error) {
	parts := strings.SplitN(lsn, "/", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed lsn %q", lsn)
	}
	hi, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed lsn %q: %w", lsn, err)
	}
	lo, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed lsn %q: %w", lsn, err)
	}
	return hi<<32 | lo, nil
}

// Compare orders two checkpoints of the same Kind. Checkpoints are
// totally ordered only within a source kind; comparing across kinds is
// an error.
func (c Checkpoint) Compare(other Checkpoint) (int, error) {
	if c.Kind != other.Kind {
		return 0, fmt.Errorf("checkpoints of kind %s and %s are not ordered", c.Kind, other.Kind)
	}
	switch c.Kind {
	case CheckpointPostgresSeq:
		return cmpInt64(c.SequenceID, other.SequenceID), nil
	case CheckpointPostgresLSN:
		a, err := lsnValue(c.LSN)
		if err != nil {
			return 0, err
		}
		b, err := lsnValue(other.LSN)
		if err != nil {
			return 0, err
		}
		return cmpUint64(a, b), nil
	case CheckpointMySQLBinlog:
		if c.BinlogFile != other.BinlogFile {
			return strings.Compare(c.BinlogFile, other.BinlogFile), nil
		}
		return cmpUint32(c.BinlogPos, other.BinlogPos), nil
	case CheckpointNeo4j:
		return cmpInt64(c.TimestampMS, other.TimestampMS), nil
	default:
		// mysql_gtid and mongodb resume tokens have no caller-visible
		// numeric ordering; fall back to capture timestamp, which the
		// capture sources are required to set monotonically.
		return cmpTime(c.Ts, other.Ts), nil
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpUint32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}
