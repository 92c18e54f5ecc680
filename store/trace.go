package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/brensch/numberflow/game"
	"github.com/brensch/numberflow/round"
)

// TraceRow is one tick of one round. Grid holds the settled values row-major
// (0 for empty) so a trace can be replayed without the engine.
type TraceRow struct {
	RoundID    string  `parquet:"round_id,dict"`
	Tick       int32   `parquet:"tick"`
	Width      int32   `parquet:"width"`
	Height     int32   `parquet:"height"`
	Grid       []int32 `parquet:"grid"`
	Score      int32   `parquet:"score"`
	Highest    int32   `parquet:"highest"`
	Phase      string  `parquet:"phase,dict"`
	SpeedLevel int32   `parquet:"speed_level"`

	LeftShape  string `parquet:"left_shape,dict"`
	LeftValue  int32  `parquet:"left_value"`
	LeftX      int32  `parquet:"left_x"`
	LeftY      int32  `parquet:"left_y"`
	RightShape string `parquet:"right_shape,dict"`
	RightValue int32  `parquet:"right_value"`
	RightX     int32  `parquet:"right_x"`
	RightY     int32  `parquet:"right_y"`

	Spawns int32  `parquet:"spawns"`
	Placed int32  `parquet:"placed"`
	Merges int32  `parquet:"merges"` // piece merges plus settlement merges
	Gained int32  `parquet:"gained"`
	Policy string `parquet:"policy,dict"`
}

// NewTraceRow flattens the state a tick produced together with what
// happened during that tick.
func NewTraceRow(roundID, policy string, res round.Result) TraceRow {
	s := res.State
	row := TraceRow{
		RoundID:    roundID,
		Tick:       int32(s.Ticks),
		Width:      int32(s.Grid.Width),
		Height:     int32(s.Grid.Height),
		Grid:       make([]int32, len(s.Grid.Cells)),
		Score:      int32(s.Score),
		Highest:    int32(s.Highest),
		Phase:      s.Phase.String(),
		SpeedLevel: int32(s.SpeedLevel),
		Spawns:     int32(res.Count(round.EventSpawn)),
		Placed:     int32(res.Count(round.EventPlace)),
		Merges:     int32(res.Count(round.EventMerge) + res.Settlement.Merges),
		Gained:     int32(res.Settlement.Gained),
		Policy:     policy,
		LeftX:      -1,
		LeftY:      -1,
		RightX:     -1,
		RightY:     -1,
	}
	for i, c := range s.Grid.Cells {
		row.Grid[i] = int32(c.Value)
	}
	for _, e := range res.Events {
		if e.Kind == round.EventMerge {
			row.Gained += int32(e.Value * e.Cells)
		}
	}
	if p := s.Pieces[game.LeftSide]; p != nil {
		row.LeftShape, row.LeftValue = p.ShapeName, int32(p.Value)
		row.LeftX, row.LeftY = int32(p.Pos.X), int32(p.Pos.Y)
	}
	if p := s.Pieces[game.RightSide]; p != nil {
		row.RightShape, row.RightValue = p.ShapeName, int32(p.Value)
		row.RightX, row.RightY = int32(p.Pos.X), int32(p.Pos.Y)
	}
	return row
}

// TraceWriter streams TraceRows into one zstd-compressed parquet file. The
// file is written under outDir/tmp and only moved into outDir by Finalize,
// so readers never see a half-written batch.
type TraceWriter struct {
	tmpPath string
	outPath string

	file   *os.File
	writer *parquet.GenericWriter[TraceRow]

	rows   int
	rounds int
}

func NewTraceWriter(outDir string) (*TraceWriter, error) {
	if outDir == "" {
		return nil, fmt.Errorf("outDir is required")
	}
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		absOut = outDir
	}
	tmpDir := filepath.Join(absOut, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("trace_%d.parquet", time.Now().UnixNano())
	tmpPath := filepath.Join(tmpDir, name)
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tmp parquet: %w", err)
	}
	w := parquet.NewGenericWriter[TraceRow](
		f,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("grid"),
	)
	w.SetKeyValueMetadata("schema", "numberflow_trace_v1")

	return &TraceWriter{
		tmpPath: tmpPath,
		outPath: filepath.Join(absOut, name),
		file:    f,
		writer:  w,
	}, nil
}

func (t *TraceWriter) OutPath() string { return t.outPath }
func (t *TraceWriter) Rows() int       { return t.rows }
func (t *TraceWriter) Rounds() int     { return t.rounds }

func (t *TraceWriter) WriteRows(rows []TraceRow) error {
	if t.writer == nil {
		return fmt.Errorf("trace writer is closed")
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := t.writer.Write(rows); err != nil {
		return fmt.Errorf("write trace rows: %w", err)
	}
	t.rows += len(rows)
	return nil
}

// NoteRound counts a finished round toward the batch.
func (t *TraceWriter) NoteRound() { t.rounds++ }

// Finalize closes the file and publishes it. An empty batch is discarded and
// reported with an empty path.
func (t *TraceWriter) Finalize() (outPath string, rows int, err error) {
	if t.writer == nil && t.file == nil {
		return "", 0, nil
	}
	closeErr := t.writer.Close()
	t.writer = nil
	_ = t.file.Sync()
	fileErr := t.file.Close()
	t.file = nil
	if closeErr != nil {
		return "", 0, fmt.Errorf("close parquet writer: %w", closeErr)
	}
	if fileErr != nil {
		return "", 0, fmt.Errorf("close parquet file: %w", fileErr)
	}
	if t.rows == 0 {
		_ = os.Remove(t.tmpPath)
		return "", 0, nil
	}
	if err := os.Rename(t.tmpPath, t.outPath); err != nil {
		return "", 0, fmt.Errorf("rename parquet: %w", err)
	}
	return t.outPath, t.rows, nil
}

// ReadTrace loads every row of a published trace file.
func ReadTrace(path string) ([]TraceRow, error) {
	rows, err := parquet.ReadFile[TraceRow](path)
	if err != nil {
		return nil, fmt.Errorf("read trace %s: %w", path, err)
	}
	return rows, nil
}
