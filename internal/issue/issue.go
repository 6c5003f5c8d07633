// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

const (
	ConfigLoadFailedId Id = iota + 1
	ManifestNotFoundId
	ManifestInvalidId
	DuplicateModuleId
	ResolutionFailedId
	ActivationFailedId
	DeactivationFailedId
	SymbolNotFoundId
	StorageUnavailableId
	LockTimeoutId
	ShutdownTimeoutId
)

type (
	Id int

	MarkdownMsg string

	Issue struct {
		id    Id          // ID used to lookup the issue
		title string      // heading rendered above the message
		mdMsg MarkdownMsg // Markdown text that will be rendered
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) Title() string {
	return i.title
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

// Render renders the issue's guidance with glamour. An empty stylePath uses
// the "auto" style, which picks dark or light based on the terminal.
func (i *Issue) Render(stylePath string) (string, error) {
	if stylePath == "" {
		stylePath = "auto"
	}
	var md strings.Builder
	md.WriteString("# ")
	md.WriteString(i.title)
	md.WriteString("\n")
	md.WriteString(string(i.mdMsg))
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id:    ConfigLoadFailedId,
		title: "Failed to load configuration",
		mdMsg: `
The configuration file exists but could not be read or does not match the schema.

## Things you can try:
- Print the effective configuration:
~~~
$ modrt config show
~~~

- Compare your file with the accepted keys:
~~~cue
storage: { driver: "fs", path: "" }
shutdown: { workers: 4, timeout: "30s" }
lock: { timeout: "30s" }
log: { level: "warn" }
bundles: { dir: "" }
~~~

- Point at another file with ` + "`--config`" + `, or remove the file to use the defaults`,
	}

	manifestNotFoundIssue = &Issue{
		id:    ManifestNotFoundId,
		title: "No module manifest found",
		mdMsg: `
Every module directory must contain a ` + "`module.cue`" + ` file.

## Things you can try:
- Check the directory passed to the command, or ` + "`bundles.dir`" + ` in your config
- Create a minimal manifest:
~~~cue
name:    "com.acme.util"
version: "1.0.0"
exports: [{namespace: "com.acme.util"}]
~~~`,
	}

	manifestInvalidIssue = &Issue{
		id:    ManifestInvalidId,
		title: "Invalid module manifest",
		mdMsg: `
A ` + "`module.cue`" + ` file failed schema validation or contains an unparsable version or range.

## Things you can try:
- Versions use semantic versioning: ` + "`1.2.3`" + `
- Ranges use interval notation ` + "`[1.0.0,2.0.0)`" + ` or constraints ` + "`>=1.0.0, <2.0.0`" + `
- Only dynamic requirements may use wildcards such as ` + "`com.acme.*`" + ` or ` + "`*`" + `
- A fragment declares ` + "`host`" + ` and must not declare an activator`,
	}

	duplicateModuleIssue = &Issue{
		id:    DuplicateModuleId,
		title: "Duplicate module",
		mdMsg: `
Two modules with the same name and version were installed from different locations.

## Things you can try:
- Remove one of the copies from the bundles directory
- Bump the version of the module you changed`,
	}

	resolutionFailedIssue = &Issue{
		id:    ResolutionFailedId,
		title: "Module could not be resolved",
		mdMsg: `
At least one mandatory requirement has no acceptable provider. The error names the
first unmet requirement and why it was unmet:

| Reason | Meaning |
|---|---|
| absent | no installed module exports the namespace |
| version mismatch | the namespace is exported, but outside the requested range |
| attribute mismatch | namespace and version match, attributes do not |
| provider unresolvable | every matching provider failed to resolve itself |

## Things you can try:
- Inspect the wiring of everything that did resolve:
~~~
$ modrt resolve ./bundles
~~~

- Mark the requirement ` + "`optional: true`" + ` if the module can run without it`,
	}

	activationFailedIssue = &Issue{
		id:    ActivationFailedId,
		title: "Module failed to start",
		mdMsg: `
The module's activator returned an error or panicked. Everything it registered has
been torn down and the module is back in the RESOLVED state.

## Things you can try:
- Run with ` + "`--verbose`" + ` to see the activator's log output
- Check that the ` + "`activator`" + ` named in module.cue is registered`,
	}

	deactivationFailedIssue = &Issue{
		id:    DeactivationFailedId,
		title: "Module failed to stop cleanly",
		mdMsg: `
The module's activator returned an error from Stop. Teardown still completed and the
module is RESOLVED; only the error is reported.`,
	}

	symbolNotFoundIssue = &Issue{
		id:    SymbolNotFoundId,
		title: "Symbol not found",
		mdMsg: `
No provider in the module's scope could supply the symbol. Lookups consult, in order:
the module's own content for namespaces it owns, its wires, then its dynamic
requirements.

## Things you can try:
- Check that the providing module exports the symbol's namespace
- Check include/exclude filters on the export
- Add a dynamic requirement such as ` + "`{namespace: \"com.acme.*\", dynamic: true}`",
	}

	storageUnavailableIssue = &Issue{
		id:    StorageUnavailableId,
		title: "Storage unavailable",
		mdMsg: `
The content store could not be opened.

## Things you can try:
- Check ` + "`storage.driver`" + ` (` + "`fs`" + ` or ` + "`sqlite`" + `) and ` + "`storage.path`" + `
- For sqlite, make sure the parent directory exists and is writable
- Populate a sqlite store from module directories:
~~~
$ modrt import ./bundles
~~~`,
	}

	lockTimeoutIssue = &Issue{
		id:    LockTimeoutId,
		title: "Timed out waiting for a module",
		mdMsg: `
Another lifecycle operation held the module for longer than ` + "`lock.timeout`" + `.
This usually means an activator is blocking in Start or Stop.

## Things you can try:
- Raise ` + "`lock.timeout`" + ` in the config
- Run with ` + "`--verbose`" + ` to find the activator that does not return`,
	}

	shutdownTimeoutIssue = &Issue{
		id:    ShutdownTimeoutId,
		title: "Shutdown timed out",
		mdMsg: `
Not every module stopped within ` + "`shutdown.timeout`" + `. Modules still stopping are
abandoned when the process exits.

## Things you can try:
- Raise ` + "`shutdown.timeout`" + ` or ` + "`shutdown.workers`" + ` in the config`,
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():   configLoadFailedIssue,
		manifestNotFoundIssue.Id():   manifestNotFoundIssue,
		manifestInvalidIssue.Id():    manifestInvalidIssue,
		duplicateModuleIssue.Id():    duplicateModuleIssue,
		resolutionFailedIssue.Id():   resolutionFailedIssue,
		activationFailedIssue.Id():   activationFailedIssue,
		deactivationFailedIssue.Id(): deactivationFailedIssue,
		symbolNotFoundIssue.Id():     symbolNotFoundIssue,
		storageUnavailableIssue.Id(): storageUnavailableIssue,
		lockTimeoutIssue.Id():        lockTimeoutIssue,
		shutdownTimeoutIssue.Id():    shutdownTimeoutIssue,
	}
)

// Values returns every catalog entry ordered by ID.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int {
		return int(a.id - b.id)
	})
}

func Get(id Id) *Issue {
	return issues[id]
}
