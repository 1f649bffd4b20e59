package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstitute_ResolvesKnownScopes(t *testing.T) {
	bindings := Bindings(
		map[string]Value{"threads": Int(4)},
		map[string]Value{"sample": Str("s1.fastq")},
		map[string]Value{"cpu": Int(2)},
		map[string]Value{
			"align": MapValue(map[string]Value{
				"outputs": MapValue(map[string]Value{"bam": Str("align.bam")}),
			}),
		},
		"/data/runs/x",
	)

	got := Substitute("run --threads ${config.threads} -i ${inputs.sample} -o ${run_dir}/out.bam using ${steps.align.outputs.bam}", bindings)
	assert.Equal(t, "run --threads 4 -i s1.fastq -o /data/runs/x/out.bam using align.bam", got)
}

func TestSubstitute_LeavesUnresolvedUntouched(t *testing.T) {
	bindings := Bindings(nil, nil, nil, nil, "/data/runs/x")
	got := Substitute("echo $HOME and ${config.missing}", bindings)
	assert.Equal(t, "echo $HOME and ${config.missing}", got)
}

// TestSubstitute_IdempotentWithoutReferences covers invariant 5 in §8.
func TestSubstitute_IdempotentWithoutReferences(t *testing.T) {
	bindings := Bindings(nil, nil, nil, nil, "/data/runs/x")
	plain := "echo hi > $HOME/out.txt"
	once := Substitute(plain, bindings)
	twice := Substitute(once, bindings)
	assert.Equal(t, plain, once)
	assert.Equal(t, once, twice)
}
