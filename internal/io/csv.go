package io

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/gonum/matrix/mat64"
)

// Mat64toCSV saves Mat64 as a csv file
func Mat64toCSV(path string, matrix *mat64.Dense) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("[Mat64toCSV] failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	rows, _ := matrix.Dims()

	stride := runtime.NumCPU()
	parsed := make([]string, stride)

	for row := 0; row < rows; row += stride {
		var wg sync.WaitGroup
		jobMark := stride

		if row+stride >= rows {
			jobMark = rows - row
		}

		wg.Add(jobMark)
		for offset := 0; offset < jobMark; offset++ {
			go func(offset int) {
				defer wg.Done()
				parsed[offset] = formatRow(matrix.RawRowView(row + offset))
			}(offset)
		}
		wg.Wait()

		for i := 0; i < jobMark; i++ {
			if _, err := fmt.Fprintln(w, parsed[i]); err != nil {
				return fmt.Errorf("[Mat64toCSV] failed to write %s: %w", path, err)
			}
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("[Mat64toCSV] failed to write %s: %w", path, err)
	}

	return f.Close()
}

func formatRow(values []float64) string {
	nums := make([]string, len(values))
	for i, v := range values {
		nums[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}

	return strings.Join(nums, ", ")
}
