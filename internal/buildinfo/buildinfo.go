// Package buildinfo reports the running binary's version, set with -ldflags
// and completed from the embedded VCS stamp when available.
package buildinfo

import "runtime/debug"

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    info := map[string]string{
        "version": Version,
        "commit":  Commit,
        "builtAt": BuiltAt,
    }
    bi, ok := debug.ReadBuildInfo()
    if !ok { return info }
    info["goVersion"] = bi.GoVersion
    for _, s := range bi.Settings {
        switch s.Key {
        case "vcs.revision":
            if info["commit"] == "" { info["commit"] = s.Value }
        case "vcs.time":
            if info["builtAt"] == "" { info["builtAt"] = s.Value }
        case "vcs.modified":
            info["dirty"] = s.Value
        }
    }
    return info
}
