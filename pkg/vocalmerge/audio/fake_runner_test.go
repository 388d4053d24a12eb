package audio

import (
	"context"
	"os"

	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/process"
)

type fakeRunner struct {
	specs  []process.Spec
	result process.Result
	err    error
	// when set, the last argument is treated as an output path and written
	writeOutput []byte
}

func (f *fakeRunner) Run(ctx context.Context, spec process.Spec) (process.Result, error) {
	f.specs = append(f.specs, spec)
	if f.writeOutput != nil && len(spec.Args) > 0 {
		if err := os.WriteFile(spec.Args[len(spec.Args)-1], f.writeOutput, 0o644); err != nil {
			return process.Result{ExitCode: -1}, err
		}
	}
	return f.result, f.err
}
