// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/invowk/modrt/pkg/module"
)

// LogActivator is the name of the built-in activator that logs its module's
// lifecycle and publishes the module logger as a service.
const LogActivator = "modrt.log"

// logActivator reports lifecycle events of every module while its own
// module is active.
type logActivator struct{}

// BuiltinActivators returns the activators available to manifests run by the CLI.
func BuiltinActivators() module.Activators {
	return module.Activators{
		LogActivator: func() module.Activator { return logActivator{} },
	}
}

func (logActivator) Start(actx module.ActivationContext) error {
	desc := actx.Module().Descriptor()
	logger := actx.Logger().With("name", desc.SymbolicName)

	if _, err := actx.RegisterService(string(desc.SymbolicName)+".log", logger); err != nil {
		return err
	}
	actx.AddListener(func(ev module.Event) {
		if ev.Err != nil {
			logger.Warn("framework event", "event", ev.Type, "module", ev.Module, "err", ev.Err)
			return
		}
		logger.Debug("framework event", "event", ev.Type, "module", ev.Module)
	})

	logger.Info("module started", "version", desc.EffectiveVersion(), "activation", actx.ID())
	return nil
}

func (logActivator) Stop(actx module.ActivationContext) error {
	actx.Logger().Info("module stopping", "name", actx.Module().Descriptor().SymbolicName)
	return nil
}
