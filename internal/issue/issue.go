// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Id int

const (
	ConfigLoadFailedId Id = iota + 1
	ManifestMalformedId
	DescriptorMalformedId
	DependencyMissingId
	CapabilityNotFoundId
	LocationUnresolvedId
	CapabilityInitFailedId
	DuplicateCapabilityId
	WatchFailedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the guide as terminal markdown with the given glamour style
// ("dark", "light", "notty" or a path to a style file).
func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
		for _, link := range i.extLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

The configuration file could not be read or does not match the schema.

## Things you can try:
- Print the effective configuration:
~~~
$ capkit config show
~~~

- Recreate a default file and compare:
~~~
$ capkit config init
~~~

## Valid configuration example:
~~~cue
descriptor_file: "capability.json"
log: level: "info"
selectors: env: "prod"
watch: debounce: "300ms"
~~~`,
	}

	manifestMalformedIssue = &Issue{
		id: ManifestMalformedId,
		mdMsg: `
# Malformed package manifest!

A package manifest could not be parsed. The package is still treated as a
package root, but none of its dependencies are followed.

## Things you can try:
- Check the manifest is valid JSON
- Make sure ` + "`dependencies`" + `, ` + "`peerDependencies`" + ` and
  ` + "`devDependencies`" + ` are objects keyed by package name
- List every diagnostic:
~~~
$ capkit diagnostics
~~~`,
	}

	descriptorMalformedIssue = &Issue{
		id: DescriptorMalformedId,
		mdMsg: `
# Malformed capability descriptor!

A descriptor was skipped. Capabilities declared elsewhere are unaffected.

## A descriptor is one of:
~~~json
{
  "logger": "./log",
  "store": { "entryPoint": "./store", "env": "prod" },
  "http": { "client": "./client", "server": "./server" }
}
~~~

or a list of directories to aggregate:
~~~json
["./capabilities", "./vendor/caps"]
~~~`,
	}

	dependencyMissingIssue = &Issue{
		id: DependencyMissingId,
		mdMsg: `
# Dependency not installed!

A manifest names a dependency with no install directory in the package or
any of its ancestors. Its capabilities are not visible.

## Things you can try:
- Install the dependency into the modules directory
- Check the ` + "`modules_dir`" + ` setting matches your layout`,
	}

	capabilityNotFoundIssue = &Issue{
		id: CapabilityNotFoundId,
		mdMsg: `
# Capability not found!

No override, discovered capability or built-in is bound to the namespace as
seen from the calling location.

## Things you can try:
- List what is visible from the calling directory:
~~~
$ capkit list --path ./src
~~~

- Check that the package declaring it is a dependency of the caller
- Check the namespace for typos`,
	}

	locationUnresolvedIssue = &Issue{
		id: LocationUnresolvedId,
		mdMsg: `
# Cannot locate capability!

A descriptor entry points at a location that is neither a data file
(` + "`.json`" + `, ` + "`.cue`" + `, ` + "`.toml`" + `) nor a registered provider.

## Things you can try:
- Register the factory in Go:
~~~go
provider.Provide("mymodule/store", store.New)
~~~

- Fix the entry point path in the descriptor`,
	}

	capabilityInitFailedIssue = &Issue{
		id: CapabilityInitFailedId,
		mdMsg: `
# Capability initialization failed!

The capability was found but its factory returned an error. The failure is
remembered for the calling location until the context forgets it.`,
	}

	duplicateCapabilityIssue = &Issue{
		id: DuplicateCapabilityId,
		mdMsg: `
# Duplicate capability!

The same capability was discovered at more than one location. The first one
found wins; the others are recorded.

## Things you can try:
- Show every duplicate:
~~~
$ capkit duplicates
~~~

- Deduplicate the installed dependency versions`,
	}

	watchFailedIssue = &Issue{
		id: WatchFailedId,
		mdMsg: `
# Watching failed!

The filesystem watcher could not be started or stopped unexpectedly.

## Things you can try:
- Raise the inotify watch limit:
~~~
$ sudo sysctl fs.inotify.max_user_watches=524288
~~~

- Narrow ` + "`watch.patterns`" + ` or add ` + "`watch.ignore`" + ` globs`,
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():     configLoadFailedIssue,
		manifestMalformedIssue.Id():    manifestMalformedIssue,
		descriptorMalformedIssue.Id():  descriptorMalformedIssue,
		dependencyMissingIssue.Id():    dependencyMissingIssue,
		capabilityNotFoundIssue.Id():   capabilityNotFoundIssue,
		locationUnresolvedIssue.Id():   locationUnresolvedIssue,
		capabilityInitFailedIssue.Id(): capabilityInitFailedIssue,
		duplicateCapabilityIssue.Id():  duplicateCapabilityIssue,
		watchFailedIssue.Id():          watchFailedIssue,
	}
)

// Values returns every issue ordered by id.
func Values() []*Issue {
	out := maps.Values(issues)
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id - b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
