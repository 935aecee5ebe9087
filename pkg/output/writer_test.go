package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "i-123")

	assert.NotNil(t, w)
	assert.Equal(t, "i-123", w.instanceID)
}

func TestJSONLWriter_WriteStep(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "i-123")

	step := &StepRecord{
		Index:       3,
		Total:       23,
		Name:        "create_new_instance",
		Description: "Create replacement instance",
		Outcome:     StepOutcomeSuccess,
		Message:     "launched replacement instance i-new",
	}

	err := w.WriteStep(context.Background(), step)
	require.NoError(t, err)

	var record Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, TypeStep, record.Type)
	assert.Equal(t, "i-123", record.InstanceID)
	assert.False(t, record.TS.IsZero())

	var stepData StepRecord
	require.NoError(t, json.Unmarshal(record.Data, &stepData))
	assert.Equal(t, "create_new_instance", stepData.Name)
	assert.Equal(t, StepOutcomeSuccess, stepData.Outcome)
}

func TestJSONLWriter_WriteWarning(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "i-123")

	err := w.WriteWarning(context.Background(), &WarningRecord{Message: "a reboot is recommended"})
	require.NoError(t, err)

	var record Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, TypeWarning, record.Type)

	var warnData WarningRecord
	require.NoError(t, json.Unmarshal(record.Data, &warnData))
	assert.Equal(t, "a reboot is recommended", warnData.Message)
}

func TestJSONLWriter_WriteSummary(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "i-123")

	sum := &SummaryRecord{
		Status:        "success",
		NewInstanceID: "i-new",
		AMIID:         "ami-xyz",
		StepCount:     23,
		Duration:      90 * time.Second,
		DurationHuman: "1m30s",
		WarningCount:  1,
	}

	err := w.WriteSummary(context.Background(), sum)
	require.NoError(t, err)

	var record Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, TypeSummary, record.Type)

	var sumData SummaryRecord
	require.NoError(t, json.Unmarshal(record.Data, &sumData))
	assert.Equal(t, "success", sumData.Status)
	assert.Equal(t, "i-new", sumData.NewInstanceID)
	assert.Equal(t, 23, sumData.StepCount)
	assert.Equal(t, 90*time.Second, sumData.Duration)
}

func TestJSONLWriter_WriteError(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "i-123")

	err := w.WriteError(context.Background(), &ErrorRecord{Kind: "step_failure", Op: "terminate_instance", Message: "boom"})
	require.NoError(t, err)

	var record Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, TypeError, record.Type)

	var errData ErrorRecord
	require.NoError(t, json.Unmarshal(record.Data, &errData))
	assert.Equal(t, "step_failure", errData.Kind)
	assert.Equal(t, "boom", errData.Message)
}

func TestJSONLWriter_NewlineTerminated(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "i-123")

	require.NoError(t, w.WriteStep(context.Background(), &StepRecord{Name: "read_state_table"}))
	require.NoError(t, w.WriteStep(context.Background(), &StepRecord{Name: "checkpoint_instance_state"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)

	for _, line := range lines {
		var record Record
		assert.NoError(t, json.Unmarshal([]byte(line), &record))
	}
}

func TestJSONLWriter_Close(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "i-123")

	require.NoError(t, w.Close())

	err := w.WriteStep(context.Background(), &StepRecord{Name: "read_state_table"})
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestJSONLWriter_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "i-123")

	const numWriters = 10
	const writesPerWriter = 100

	var wg sync.WaitGroup
	wg.Add(numWriters)

	for i := 0; i < numWriters; i++ {
		go func(writerID int) {
			defer wg.Done()
			for j := 0; j < writesPerWriter; j++ {
				_ = w.WriteStep(context.Background(), &StepRecord{Index: writerID*writesPerWriter + j})
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, numWriters*writesPerWriter)

	for i, line := range lines {
		var record Record
		assert.NoError(t, json.Unmarshal([]byte(line), &record), "line %d should be valid JSON: %s", i, line)
	}
}

func TestJSONLWriter_ContextCancellation(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "i-123")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.WriteStep(ctx, &StepRecord{Name: "read_state_table"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, buf.String())
}

func TestJSONLWriter_WriteFailure(t *testing.T) {
	failWriter := &failingWriter{err: errors.New("disk full")}
	w := NewJSONLWriter(failWriter, "i-123")

	err := w.WriteStep(context.Background(), &StepRecord{Name: "read_state_table"})
	require.Error(t, err)

	var writeErr *WriteError
	assert.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "write", writeErr.Op)
}

type failingWriter struct {
	err error
}

func (f *failingWriter) Write(p []byte) (n int, err error) {
	return 0, f.err
}

func TestJSONLWriter_ShortWrite(t *testing.T) {
	shortWriter := &shortWriteWriter{bytesPerWrite: 10}
	w := NewJSONLWriter(shortWriter, "i-123")

	err := w.WriteStep(context.Background(), &StepRecord{Name: "checkpoint_instance_state", Description: "a longer description to force multiple short writes"})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(shortWriter.buf.String()), "\n")
	assert.Len(t, lines, 1)

	var record Record
	err = json.Unmarshal([]byte(lines[0]), &record)
	assert.NoError(t, err, "output should be valid JSON despite short writes")
	assert.Equal(t, TypeStep, record.Type)
}

type shortWriteWriter struct {
	buf           bytes.Buffer
	bytesPerWrite int
}

func (sw *shortWriteWriter) Write(p []byte) (n int, err error) {
	toWrite := len(p)
	if toWrite > sw.bytesPerWrite {
		toWrite = sw.bytesPerWrite
	}
	return sw.buf.Write(p[:toWrite])
}

func TestJSONLWriter_ZeroWrite(t *testing.T) {
	zeroWriter := &zeroWriteWriter{}
	w := NewJSONLWriter(zeroWriter, "i-123")

	err := w.WriteStep(context.Background(), &StepRecord{Name: "read_state_table"})
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

type zeroWriteWriter struct{}

func (zw *zeroWriteWriter) Write(p []byte) (n int, err error) {
	return 0, nil
}

func TestWriteError(t *testing.T) {
	underlying := errors.New("underlying error")
	err := &WriteError{Op: "marshal", Err: underlying}

	assert.Equal(t, "output: marshal: underlying error", err.Error())
	assert.ErrorIs(t, err, underlying)
}

func TestRecord_JSONSerialization(t *testing.T) {
	record := Record{
		Type:       TypeStep,
		TS:         time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		InstanceID: "i-123",
		Data:       json.RawMessage(`{"name":"read_state_table"}`),
	}

	data, err := json.Marshal(record)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))

	assert.Equal(t, TypeStep, parsed["type"])
	assert.Equal(t, "i-123", parsed["instance_id"])
	assert.NotNil(t, parsed["ts"])
	assert.NotNil(t, parsed["data"])
}

func TestWarningRecord_Roundtrip(t *testing.T) {
	w := WarningRecord{Message: "orphaned spot request sir-1 found"}
	data, err := json.Marshal(w)
	require.NoError(t, err)

	var out WarningRecord
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, w.Message, out.Message)
}

func TestSummaryRecord_OmitEmpty(t *testing.T) {
	sum := SummaryRecord{Status: "success", StepCount: 23}
	data, err := json.Marshal(sum)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "new_instance_id")
	assert.NotContains(t, string(data), "ami_id")
}

// Benchmark for write performance.
func BenchmarkJSONLWriter_WriteStep(b *testing.B) {
	w := NewJSONLWriter(io.Discard, "i-123")
	step := &StepRecord{Index: 3, Total: 23, Name: "create_new_instance", Outcome: StepOutcomeSuccess}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = w.WriteStep(ctx, step)
	}
}
