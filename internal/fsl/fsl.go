// Package fsl builds the FSL invocations of the wmaze pipelines and writes
// the design files FSL reads.
package fsl

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KyungWonPark/nifti"
	"github.com/KyungWonPark/wmaze/internal/sched"
)

// headerSize is the size of a NIfTI-1 header
const headerSize = 348

// OutputType is the image format every tool writes
const OutputType = "NIFTI_GZ"

func env() map[string]string {
	return map[string]string{"FSLOUTPUTTYPE": OutputType}
}

// StripExt removes .nii.gz or .nii from path
func StripExt(path string) string {
	for _, ext := range []string{".nii.gz", ".nii"} {
		if strings.HasSuffix(path, ext) {
			return strings.TrimSuffix(path, ext)
		}
	}
	return path
}

// Image returns path with the output type extension
func Image(base string) string {
	return base + ".nii.gz"
}


// VolumeCount returns the number of volumes of a 4D image from its header
func VolumeCount(path string) (int, error) {
	header, err := ReadHeader(path)
	if err != nil {
		return 0, fmt.Errorf("[VolumeCount] %w", err)
	}

	if header.Dim[0] < 4 {
		return 1, nil
	}
	return int(header.Dim[4]), nil
}

// ReadHeader decodes the NIfTI-1 header of path, gunzipping names ending in
// .gz. Either byte order is accepted.
func ReadHeader(path string) (*nifti.Nifti1Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%s: short header: %w", path, err)
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(buf[0:4]) == headerSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(buf[0:4]) == headerSize:
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%s: not a NIfTI-1 header", path)
	}
	if magic := string(buf[344:348]); magic != "n+1\x00" && magic != "ni1\x00" {
		return nil, fmt.Errorf("%s: bad magic %q", path, magic)
	}

	header := &nifti.Nifti1Header{}
	if err := binary.Read(bytes.NewReader(buf), order, header); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if header.Dim[0] < 1 || header.Dim[0] > 7 {
		return nil, fmt.Errorf("%s: invalid dimension count %d", path, header.Dim[0])
	}
	return header, nil
}

// KeptVolumes returns how many volumes of a run to keep. A positive tsize
// is used as is; otherwise the trailing trim volumes are cut from the count
// in the image header.
func KeptVolumes(path string, tsize, trim int) (int, error) {
	if tsize > 0 {
		return tsize, nil
	}

	n, err := volumeCount(path)
	if err != nil {
		return 0, err
	}
	if n-trim < 1 {
		return 0, fmt.Errorf("[KeptVolumes] %s has %d volumes, cannot drop %d", path, n, trim)
	}
	return n - trim, nil
}

var volumeCount = VolumeCount

// ExtractROI keeps volumes tmin..tmin+tsize-1 of in
func ExtractROI(name, in, out string, tmin, tsize int) sched.Command {
	return sched.Command{
		Name: name,
		Args: []string{"fslroi", in, out, fmt.Sprint(tmin), fmt.Sprint(tsize)},
		Env:  env(),
	}
}

// ZtoP converts a z-statistic image to p-values, returning the command and
// the output image.
func ZtoP(name, zstat string) (sched.Command, string) {
	out := Image(StripExt(zstat) + "_pval")
	return sched.Command{
		Name: name,
		Args: []string{"fslmaths", zstat, "-ztop", out},
		Env:  env(),
	}, out
}

// Merge concatenates images along time
func Merge(name, out string, files []string) sched.Command {
	args := append([]string{"fslmerge", "-t", out}, files...)
	return sched.Command{Name: name, Args: args, Env: env()}
}

// Glob returns the sorted matches of pattern
func Glob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}
