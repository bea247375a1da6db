package fsl

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/KyungWonPark/wmaze/internal/events"
	"github.com/KyungWonPark/wmaze/internal/glm"
)

// DesignOptions are the first-level model settings shared by all runs
type DesignOptions struct {
	TR float64
	// Volumes is the number of time points of the (trimmed) run.
	Volumes int
	// HighPass is the filter cutoff in seconds; negative disables filtering.
	HighPass           float64
	SerialCorrelations bool
}

type ev struct {
	Index  int
	Title  string
	File   string
	Shape  int
	Convol int
}

type weight struct {
	EV    int
	Value string
}

type contrast struct {
	Index   int
	Name    string
	Weights []weight
}

type design struct {
	DesignOptions
	OutputDir string
	Func      string
	EVs       []ev
	Contrasts []contrast
}

func (d design) NumEVs() int { return len(d.EVs) }

func (d design) NumContrasts() int { return len(d.Contrasts) }

func (d design) Prewhiten() int {
	if d.SerialCorrelations {
		return 1
	}
	return 0
}

func (d design) TempHP() int {
	if d.HighPass > 0 {
		return 1
	}
	return 0
}

var fsfTemplate = template.Must(template.New("fsf").Parse(`# FEAT design written by wmaze lvl1
set fmri(version) 6.00
set fmri(inmelodic) 0
set fmri(level) 1
set fmri(analysis) 2
set fmri(relative_yn) 0
set fmri(help_yn) 1
set fmri(featwatcher_yn) 0
set fmri(sscleanup_yn) 0
set fmri(outputdir) "{{.OutputDir}}"
set fmri(tr) {{printf "%g" .TR}}
set fmri(npts) {{.Volumes}}
set fmri(ndelete) 0
set fmri(multiple) 1
set fmri(inputtype) 2
set fmri(filtering_yn) 0
set fmri(brain_thresh) 10
set fmri(critical_z) 5.3
set fmri(noise) 0.66
set fmri(noisear) 0.34
set fmri(mc) 0
set fmri(smooth) 0
set fmri(norm_yn) 0
set fmri(temphp_yn) {{.TempHP}}
set fmri(templp_yn) 0
set fmri(paradigm_hp) {{if gt .HighPass 0.0}}{{printf "%g" .HighPass}}{{else}}100{{end}}
set fmri(motionevs) 0
set fmri(robust_yn) 0
set fmri(mixed_yn) 2
set fmri(evs_orig) {{.NumEVs}}
set fmri(evs_real) {{.NumEVs}}
set fmri(evs_vox) 0
set fmri(ncon_orig) {{.NumContrasts}}
set fmri(ncon_real) {{.NumContrasts}}
set fmri(nftests_orig) 0
set fmri(nftests_real) 0
set fmri(constcol) 0
set fmri(poststats_yn) 0
set fmri(prewhiten_yn) {{.Prewhiten}}
set feat_files(1) "{{.Func}}"
set fmri(confoundevs) 0
{{range .EVs}}
set fmri(evtitle{{.Index}}) "{{.Title}}"
set fmri(shape{{.Index}}) {{.Shape}}
set fmri(convolve{{.Index}}) {{.Convol}}
set fmri(convolve_phase{{.Index}}) 0
set fmri(tempfilt_yn{{.Index}}) 1
set fmri(deriv_yn{{.Index}}) 0
set fmri(custom{{.Index}}) "{{.File}}"
{{- $i := .Index}}{{range $.EVs}}
set fmri(ortho{{$i}}.{{.Index}}) 0{{end}}
set fmri(ortho{{$i}}.0) 0
{{end}}
set fmri(con_mode_old) orig
set fmri(con_mode) orig
{{range .Contrasts}}
set fmri(conpic_real.{{.Index}}) 1
set fmri(conname_real.{{.Index}}) "{{.Name}}"
set fmri(conpic_orig.{{.Index}}) 1
set fmri(conname_orig.{{.Index}}) "{{.Name}}"
{{- $c := .Index}}{{range .Weights}}
set fmri(con_real{{$c}}.{{.EV}}) {{.Value}}
set fmri(con_orig{{$c}}.{{.EV}}) {{.Value}}{{end}}
{{end}}
`))

// L1Design is the fsf file of a run and the EV files it names
type L1Design struct {
	FSF     string
	EVFiles []string
}

// Files returns the fsf followed by its EV files
func (d L1Design) Files() []string {
	return append([]string{d.FSF}, d.EVFiles...)
}

// Level1Design writes the EV files and the fsf design of one run into dir. Conditions are convolved with a double
// gamma; regressors enter unconvolved. Contrasts weight conditions only.
func Level1Design(dir, funcFile string, run events.RunBundle, cons []glm.Contrast, opts DesignOptions) (L1Design, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return L1Design{}, fmt.Errorf("[Level1Design] %w", err)
	}

	d := design{DesignOptions: opts, OutputDir: filepath.Join(dir, "run0"), Func: funcFile}
	columns := make(map[string]int)

	for i, c := range run.Conditions {
		path := filepath.Join(dir, fmt.Sprintf("ev_%s_%d.txt", fileSafe(c.Name), i+1))
		if err := writeEV(path, c); err != nil {
			return L1Design{}, err
		}
		d.EVs = append(d.EVs, ev{Index: len(d.EVs) + 1, Title: c.Name, File: path, Shape: 3, Convol: 3})
		columns[c.Name] = len(d.EVs)
	}

	for i, name := range run.RegressorNames {
		values := run.Regressors[i]
		if opts.Volumes > 0 && len(values) != opts.Volumes {
			return L1Design{}, fmt.Errorf("[Level1Design] regressor %q has %d points, run has %d volumes", name, len(values), opts.Volumes)
		}
		path := filepath.Join(dir, fmt.Sprintf("ev_%s_%d.txt", fileSafe(name), len(d.EVs)+1))
		if err := writeColumn(path, values); err != nil {
			return L1Design{}, err
		}
		d.EVs = append(d.EVs, ev{Index: len(d.EVs) + 1, Title: name, File: path, Shape: 2, Convol: 0})
	}

	for i, con := range cons {
		weights := make([]weight, len(d.EVs))
		for j := range weights {
			weights[j] = weight{EV: j + 1, Value: "0"}
		}
		for j, cond := range con.Conditions {
			col, ok := columns[cond]
			if !ok {
				return L1Design{}, fmt.Errorf("[Level1Design] contrast %q references %q, which the run does not model", con.Name, cond)
			}
			weights[col-1].Value = strconv.FormatFloat(con.Weights[j], 'g', -1, 64)
		}
		d.Contrasts = append(d.Contrasts, contrast{Index: i + 1, Name: con.Name, Weights: weights})
	}

	fsf := filepath.Join(dir, "run0.fsf")
	f, err := os.Create(fsf)
	if err != nil {
		return L1Design{}, fmt.Errorf("[Level1Design] %w", err)
	}
	defer f.Close()

	if err := fsfTemplate.Execute(f, d); err != nil {
		return L1Design{}, fmt.Errorf("[Level1Design] %w", err)
	}

	if err := f.Close(); err != nil {
		return L1Design{}, fmt.Errorf("[Level1Design] %w", err)
	}

	out := L1Design{FSF: fsf}
	for _, e := range d.EVs {
		out.EVFiles = append(out.EVFiles, e.File)
	}
	return out, nil
}

func writeEV(path string, c events.Condition) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("[writeEV] %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i := range c.Onsets {
		fmt.Fprintf(w, "%g\t%g\t%g\n", c.Onsets[i], c.Durations[i], c.Amplitudes[i])
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("[writeEV] %w", err)
	}
	return f.Close()
}

func writeColumn(path string, values []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("[writeColumn] %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, v := range values {
		fmt.Fprintf(w, "%g\n", v)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("[writeColumn] %w", err)
	}
	return f.Close()
}

func fileSafe(name string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, name)
}
