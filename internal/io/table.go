package io

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gonum/matrix/mat64"
)

// ReadTable reads a whitespace-delimited numeric text file as a matrix.
// A file with one data row is a 1 by C matrix. An empty file returns a nil
// matrix, which Rows reports as zero rows.
func ReadTable(path string) (*mat64.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("[ReadTable] failed to open %s: %w", path, err)
	}
	defer f.Close()

	var data []float64
	rows, cols := 0, 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Fields(text)
		if rows == 0 {
			cols = len(fields)
		} else if len(fields) != cols {
			return nil, fmt.Errorf("[ReadTable] %s:%d: expected %d columns, got %d", path, line, cols, len(fields))
		}

		for _, field := range fields {
			value, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("[ReadTable] %s:%d: %w", path, line, err)
			}
			data = append(data, value)
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("[ReadTable] failed to read %s: %w", path, err)
	}

	if rows == 0 {
		return nil, nil
	}

	return mat64.NewDense(rows, cols, data), nil
}

// Rows returns the number of rows, treating nil as an empty table
func Rows(m *mat64.Dense) int {
	if m == nil {
		return 0
	}
	r, _ := m.Dims()
	return r
}

// Cols returns the number of columns, treating nil as an empty table
func Cols(m *mat64.Dense) int {
	if m == nil {
		return 0
	}
	_, c := m.Dims()
	return c
}

// Column copies column j of m into a new slice
func Column(m *mat64.Dense, j int) []float64 {
	if m == nil {
		return []float64{}
	}
	return mat64.Col(nil, j, m)
}
