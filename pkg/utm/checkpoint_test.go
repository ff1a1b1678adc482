package utm

import "testing"

func TestCheckpointRoundTrip(t *testing.T) {
	cases := []Checkpoint{
		{Kind: CheckpointMySQLGTID, GTIDSet: "3E11FA47-71CA-11E1-9E33-C80AA9429562:1-5"},
		{Kind: CheckpointMySQLBinlog, BinlogFile: "mysql-bin.000003", BinlogPos: 154},
		{Kind: CheckpointPostgresSeq, SequenceID: 12345},
		{Kind: CheckpointPostgresLSN, LSN: "0/16B3740"},
		{Kind: CheckpointMongoDB, ResumeToken: "gQAAAANkX2lkAFo="},
		{Kind: CheckpointNeo4j, TimestampMS: 1723845600000},
	}

	for _, c := range cases {
		wire := c.String()
		parsed, err := ParseCheckpoint(wire)
		if err != nil {
			t.Fatalf("ParseCheckpoint(%q): %v", wire, err)
		}
		if parsed.String() != wire {
			t.Fatalf("round-trip mismatch: %q -> %q", wire, parsed.String())
		}
	}
}

func TestCheckpointMonotonicity(t *testing.T) {
	a := Checkpoint{Kind: CheckpointPostgresSeq, SequenceID: 10}
	b := Checkpoint{Kind: CheckpointPostgresSeq, SequenceID: 11}
	cmp, err := a.Compare(b)
	if err != nil {
		t.Fatal(err)
	}
	if cmp >= 0 {
		t.Fatalf("expected a < b, got cmp=%d", cmp)
	}

	lsnA := Checkpoint{Kind: CheckpointPostgresLSN, LSN: "0/16B3740"}
	lsnB := Checkpoint{Kind: CheckpointPostgresLSN, LSN: "0/16B3800"}
	cmp, err = lsnA.Compare(lsnB)
	if err != nil {
		t.Fatal(err)
	}
	if cmp >= 0 {
		t.Fatalf("expected lsnA < lsnB, got cmp=%d", cmp)
	}
}

func TestCheckpointCompareDifferentKindsIsError(t *testing.T) {
	a := Checkpoint{Kind: CheckpointPostgresSeq, SequenceID: 1}
	b := Checkpoint{Kind: CheckpointNeo4j, TimestampMS: 1}
	if _, err := a.Compare(b); err == nil {
		t.Fatal("expected error comparing checkpoints of different kinds")
	}
}

func TestParseCheckpointRejectsMalformed(t *testing.T) {
	if _, err := ParseCheckpoint("not-a-checkpoint"); err == nil {
		t.Fatal("expected error for missing kind separator")
	}
	if _, err := ParseCheckpoint("postgresql_seq:not-a-number"); err == nil {
		t.Fatal("expected error for malformed sequence id")
	}
}
