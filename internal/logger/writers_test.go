package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testHeader = []string{"id", "from", "to", "amount"}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestSafeCSVWriterConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "transfers.csv")
	writer, err := NewSafeCSVWriter(path, testHeader, 20*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, err)

	const goroutines, perGoroutine = 5, 50
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				record := []string{fmt.Sprintf("%d-%d", id, j), "alice", "bob", "100"}
				assert.NoError(t, writer.WriteRecord(record))
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, writer.Flush())

	records, flushes := writer.GetStats()
	assert.Equal(t, uint64(goroutines*perGoroutine), records)
	assert.NotZero(t, flushes)
	require.NoError(t, writer.Close())

	rows := readCSV(t, path)
	require.Len(t, rows, goroutines*perGoroutine+1)
	assert.Equal(t, testHeader, rows[0])
}

func TestSafeCSVWriterHeaderOnlyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transfers.csv")

	for i := 0; i < 2; i++ {
		writer, err := NewSafeCSVWriter(path, testHeader, time.Second, nil)
		require.NoError(t, err)
		require.NoError(t, writer.WriteRecord([]string{fmt.Sprint(i), "a", "b", "1"}))
		require.NoError(t, writer.Close())
	}

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, testHeader, rows[0])
	assert.Equal(t, "1", rows[2][0])
}

func TestSafeCSVWriterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transfers.csv")
	writer, err := NewSafeCSVWriter(path, testHeader, time.Second, nil)
	require.NoError(t, err)

	require.NoError(t, writer.Close())
	require.NoError(t, writer.Close())
	assert.ErrorIs(t, writer.WriteRecord([]string{"x"}), ErrWriterClosed)
	assert.NoError(t, writer.Flush())
}

func TestSafeCSVWriterRejectsBadInterval(t *testing.T) {
	_, err := NewSafeCSVWriter(filepath.Join(t.TempDir(), "x.csv"), nil, 0, nil)
	assert.Error(t, err)
}
