package glm

import "fmt"

// Substitution replaces Find with Replace in output paths
type Substitution struct {
	Find    string
	Replace string
}

var statPrefixes = []string{"cope", "varcope", "zstat", "tstat"}

// Substitutions maps the numbered outputs of each run (cope3.nii.gz) to names
// carrying the contrast (cope03_all_fixed.nii.gz).
func Substitutions(contrasts [][]Contrast) [][]Substitution {
	subs := make([][]Substitution, 0, len(contrasts))

	for _, runCons := range contrasts {
		runSubs := make([]Substitution, 0, len(statPrefixes)*len(runCons))
		for i, con := range runCons {
			for _, prefix := range statPrefixes {
				runSubs = append(runSubs, Substitution{
					Find:    fmt.Sprintf("%s%d.", prefix, i+1),
					Replace: fmt.Sprintf("%s%02d_%s.", prefix, i+1, con.Name),
				})
			}
		}
		subs = append(subs, runSubs)
	}

	return subs
}

// GroupSubstitutions strips the parameterization folders the group sink would
// otherwise create for a contrast.
func GroupSubstitutions(contrast string) []Substitution {
	subs := []Substitution{
		{Find: "_contrast" + contrast, Replace: ""},
		{Find: "output", Replace: ""},
	}
	for i := 0; i < 23; i++ {
		subs = append(subs,
			Substitution{Find: fmt.Sprintf("_z2pval%d", i), Replace: ""},
			Substitution{Find: fmt.Sprintf("_cluster%d", i), Replace: ""},
			Substitution{Find: fmt.Sprintf("_fdr%d", i), Replace: ""},
		)
	}
	return subs
}
