package io

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gonum/matrix/mat64"
)

// ReadVEST reads an FSL VEST matrix file (design.mat, design.con, design.grp).
func ReadVEST(path string) (*mat64.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("[ReadVEST] failed to open %s: %w", path, err)
	}
	defer f.Close()

	waves, points := -1, -1
	var data []float64
	inMatrix := false

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		if inMatrix {
			for _, field := range strings.Fields(text) {
				value, err := strconv.ParseFloat(field, 64)
				if err != nil {
					return nil, fmt.Errorf("[ReadVEST] %s: %w", path, err)
				}
				data = append(data, value)
			}
			continue
		}

		fields := strings.Fields(text)
		switch fields[0] {
		case "/NumWaves", "/NumPoints", "/NumContrasts":
			if len(fields) < 2 {
				return nil, fmt.Errorf("[ReadVEST] %s: missing value for %s", path, fields[0])
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("[ReadVEST] %s: %w", path, err)
			}
			if fields[0] == "/NumWaves" {
				waves = n
			} else {
				points = n
			}
		case "/Matrix":
			inMatrix = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("[ReadVEST] failed to read %s: %w", path, err)
	}

	if waves < 1 || points < 1 {
		return nil, fmt.Errorf("[ReadVEST] %s: missing /NumWaves or /NumPoints header", path)
	}
	if len(data) != waves*points {
		return nil, fmt.Errorf("[ReadVEST] %s: header says %d by %d but matrix has %d values", path, points, waves, len(data))
	}

	return mat64.NewDense(points, waves, data), nil
}

// WriteVEST writes matrix as an FSL VEST file. pointsKey is "/NumPoints" for
// design matrices and "/NumContrasts" for contrast files.
func WriteVEST(path string, matrix *mat64.Dense, pointsKey string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("[WriteVEST] failed to create %s: %w", path, err)
	}
	defer f.Close()

	rows, cols := matrix.Dims()
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "/NumWaves\t%d\n", cols)
	fmt.Fprintf(w, "%s\t%d\n", pointsKey, rows)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "/Matrix")
	for i := 0; i < rows; i++ {
		row := matrix.RawRowView(i)
		nums := make([]string, len(row))
		for j, v := range row {
			nums[j] = strconv.FormatFloat(v, 'e', 6, 64)
		}
		fmt.Fprintln(w, strings.Join(nums, "\t"))
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("[WriteVEST] failed to write %s: %w", path, err)
	}

	return f.Close()
}
