// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the modrt command line interface.
//
// Every command discovers module.cue manifests below a directory, installs
// the units into a fresh framework and then resolves, starts or inspects
// them. The framework lives only for the duration of one invocation.
package cmd
