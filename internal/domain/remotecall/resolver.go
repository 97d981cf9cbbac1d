package remotecall

import "fmt"

// WindowsScriptPath is the fixed remote location scripts are staged at on
// Windows hosts. A deterministic path lets operators find files left behind
// by interrupted runs.
const WindowsScriptPath = `C:\Windows\Temp\script.ps1`

type chainKey struct {
	os   OSFamily
	mode Mode
}

type chainBuilder func(payload string) StepChain

var chainTable = map[chainKey]chainBuilder{
	{OSLinux, ModeCommand}: func(cmd string) StepChain {
		return StepChain{{Module: "shell", Args: cmd, Focus: true}}
	},
	{OSLinux, ModeScript}: func(path string) StepChain {
		return StepChain{{Module: "script", Args: path, Focus: true}}
	},
	{OSWindows, ModeCommand}: func(cmd string) StepChain {
		return StepChain{{Module: "win_shell", Args: cmd, Focus: true}}
	},
	{OSWindows, ModeScript}: func(path string) StepChain {
		return StepChain{
			{Module: "win_copy", Args: fmt.Sprintf("src=%s dest=%s", path, WindowsScriptPath)},
			{Module: "win_shell", Args: WindowsScriptPath, Focus: true},
			{Module: "win_file", Args: fmt.Sprintf("path=%s state=absent", WindowsScriptPath)},
		}
	},
}

// Resolve maps a request onto its step chain. Mode is checked before the
// OS family so an ambiguous request never reaches the backend.
func Resolve(req Request) (StepChain, error) {
	mode, err := req.Mode()
	if err != nil {
		return nil, err
	}

	switch req.OS() {
	case OSLinux, OSWindows:
	default:
		return nil, NewUnsupportedOSError(string(req.OS()))
	}

	build, ok := chainTable[chainKey{os: req.OS(), mode: mode}]
	if !ok {
		return nil, NewInternalError(fmt.Sprintf("no chain for %s/%s", req.OS(), mode), nil)
	}

	payload := req.Command()
	if mode == ModeScript {
		payload = req.FilePath()
	}

	chain := build(payload)
	if err := chain.Validate(); err != nil {
		return nil, err
	}
	return chain, nil
}
