package observe

import (
	"fmt"
	"regexp"
	"strings"

	"binsleuth/internal/tools"
	"binsleuth/internal/types"
)

var (
	// interestingString flags strings worth surfacing individually.
	interestingString = regexp.MustCompile(`(?i)(password|passwd|secret|license|key|flag|token|serial|auth|correct|granted|denied|usage:)`)

	// registerLine matches "rip   0x401136   0x401136 <main+4>" style rows.
	registerLine = regexp.MustCompile(`(?m)^\s*([a-z][a-z0-9]{1,7})\s+(0x[0-9a-fA-F]+)`)

	// disasmLine matches "=> 0x401136 <main+4>: cmp eax,0x539" style rows.
	disasmLine = regexp.MustCompile(`(?m)^\s*(?:=>)?\s*(0x[0-9a-fA-F]+)\s*(?:<[^>]*>)?:\s*(.+)$`)

	// breakpointHit matches "Breakpoint 1, 0x... in main ()".
	breakpointHit = regexp.MustCompile(`Breakpoint \d+, (0x[0-9a-fA-F]+)?\s*(?:in )?([\w@.]+)?`)

	// hexAddress finds bare code addresses in free text.
	hexAddress = regexp.MustCompile(`0x[0-9a-fA-F]{4,16}`)

	// promptLine spots interactive prompts in run output.
	promptLine = regexp.MustCompile(`(?im)^.*?(enter|input|password|passphrase|key|choice|select|continue\?).*?[:>?]\s*$`)
)

// maxPerKind bounds signals of one kind per observation.
const maxPerKind = 30

// extractFileSignals parses `file` output into target metadata.
func extractFileSignals(out string) []types.Signal {
	var signals []types.Signal

	format := types.FormatUnknown
	switch {
	case strings.Contains(out, "ELF"):
		format = types.FormatELF
	case strings.Contains(out, "PE32"), strings.Contains(out, "MS Windows"):
		format = types.FormatPE
	case strings.Contains(out, "Mach-O"):
		format = types.FormatMachO
	}
	if format != types.FormatUnknown {
		signals = append(signals, types.Signal{Kind: "target_info", Name: "format", Value: string(format)})
	}

	for _, arch := range []string{"x86-64", "x86_64", "aarch64", "arm64", "i386", "ARM", "RISC-V", "MIPS"} {
		if strings.Contains(out, arch) {
			signals = append(signals, types.Signal{Kind: "target_info", Name: "arch", Value: arch})
			break
		}
	}

	switch {
	case strings.Contains(out, "not stripped"):
		signals = append(signals, types.Signal{Kind: "target_info", Name: "stripped", Value: "false"})
	case strings.Contains(out, "stripped"):
		signals = append(signals, types.Signal{Kind: "target_info", Name: "stripped", Value: "true"})
	}

	switch {
	case strings.Contains(out, "statically linked"):
		signals = append(signals, types.Signal{Kind: "target_info", Name: "linkage", Value: "static"})
	case strings.Contains(out, "dynamically linked"):
		signals = append(signals, types.Signal{Kind: "target_info", Name: "linkage", Value: "dynamic"})
	}

	return signals
}

// extractStringSignals surfaces the lines most likely to matter; the full
// dump stays in RawOutput.
func extractStringSignals(out string) []types.Signal {
	var signals []types.Signal
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !interestingString.MatchString(line) {
			continue
		}
		signals = append(signals, types.Signal{Kind: "string", Value: line})
		if len(signals) >= maxPerKind {
			break
		}
	}
	return signals
}

// magicHeaders maps well-known leading bytes (as they appear in canonical
// hexdump output) to container names.
var magicHeaders = []struct {
	pattern string
	name    string
}{
	{"7f 45 4c 46", "ELF"},
	{"4d 5a", "PE/DOS MZ"},
	{"cf fa ed fe", "Mach-O 64"},
	{"50 4b 03 04", "ZIP"},
	{"1f 8b", "gzip"},
}

// extractHexdumpSignals looks for known magic headers and the printable
// runs in the ASCII column.
func extractHexdumpSignals(out string) []types.Signal {
	var signals []types.Signal
	lower := strings.ToLower(out)
	for _, m := range magicHeaders {
		if strings.Contains(lower, m.pattern) {
			signals = append(signals, types.Signal{Kind: "note", Name: "magic", Value: m.name})
		}
	}

	// The ASCII gutter sits between pipes in hexdump -C output.
	for _, line := range strings.Split(out, "\n") {
		start := strings.Index(line, "|")
		end := strings.LastIndex(line, "|")
		if start < 0 || end <= start {
			continue
		}
		ascii := strings.Trim(line[start+1:end], ".")
		if len(ascii) >= 6 && interestingString.MatchString(ascii) {
			offset := strings.Fields(line)
			sig := types.Signal{Kind: "string", Value: ascii}
			if len(offset) > 0 {
				sig.Name = "offset_" + offset[0]
			}
			signals = append(signals, sig)
			if len(signals) >= maxPerKind {
				break
			}
		}
	}
	return signals
}

// extractRunSignals classifies run_binary output: exit code, interactive
// prompts, and success/denial banners.
func extractRunSignals(res *tools.Result) []types.Signal {
	var signals []types.Signal
	if res.ExitCode != nil {
		signals = append(signals, types.Signal{Kind: "exit_code", Value: fmt.Sprintf("%d", *res.ExitCode)})
	}

	for _, m := range promptLine.FindAllString(res.RawOutput, maxPerKind) {
		signals = append(signals, types.Signal{Kind: "prompt", Value: strings.TrimSpace(m)})
	}

	for _, line := range strings.Split(res.RawOutput, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if interestingString.MatchString(trimmed) && !promptLine.MatchString(trimmed) {
			signals = append(signals, types.Signal{Kind: "string", Value: trimmed})
			if len(signals) >= 2*maxPerKind {
				break
			}
		}
	}
	return signals
}

// extractDebuggerSignals pulls registers, disassembly, breakpoint hits, and
// bare addresses out of a gdb transcript. Per-command-family parsing keyed on
// output shape, not on the issued command.
func extractDebuggerSignals(out string) []types.Signal {
	var signals []types.Signal

	for _, m := range registerLine.FindAllStringSubmatch(out, maxPerKind) {
		signals = append(signals, types.Signal{Kind: "register", Name: m[1], Value: m[2]})
	}

	for _, m := range breakpointHit.FindAllStringSubmatch(out, maxPerKind) {
		val := strings.TrimSpace(m[1] + " " + m[2])
		if val != "" {
			signals = append(signals, types.Signal{Kind: "note", Name: "breakpoint", Value: val})
		}
	}

	disasmSeen := 0
	for _, m := range disasmLine.FindAllStringSubmatch(out, maxPerKind) {
		// Register rows also match the generic address pattern; skip rows
		// already captured above.
		if registerLine.MatchString(m[0]) {
			continue
		}
		signals = append(signals, types.Signal{Kind: "disasm", Name: m[1], Value: strings.TrimSpace(m[2])})
		disasmSeen++
	}

	if len(signals) == 0 {
		// Fall back to bare addresses so prints like "$1 = 0x401136" still
		// register as structure.
		for _, addr := range hexAddress.FindAllString(out, maxPerKind) {
			signals = append(signals, types.Signal{Kind: "address", Value: addr})
		}
	}
	return signals
}

// extractSearchSignals notes the result URLs so the critic can cite them.
func extractSearchSignals(out string) []types.Signal {
	var signals []types.Signal
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "URL: ") {
			signals = append(signals, types.Signal{Kind: "note", Name: "source", Value: strings.TrimPrefix(line, "URL: ")})
			if len(signals) >= maxPerKind {
				break
			}
		}
	}
	return signals
}
