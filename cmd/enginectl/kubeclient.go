package main

import (
	"fmt"
	"os"

	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/cli"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/deployforge/engine/internal/engineerr"
	"github.com/deployforge/engine/internal/event"
	"github.com/deployforge/engine/internal/kube"
)

// helmSettings builds the *cli.EnvSettings a Helm action.Configuration
// needs, scoped to one kubeconfig/context/namespace triple.
func helmSettings(kubeconfig, context, namespace string) *cli.EnvSettings {
	settings := cli.New()
	if kubeconfig != "" {
		settings.KubeConfig = kubeconfig
	}
	if context != "" {
		settings.KubeContext = context
	}
	settings.SetNamespace(namespace)
	return settings
}

// newKubeTarget wires a controller-runtime client.Client and a Helm
// action.Configuration to the same cluster/namespace, the two halves
// internal/kube.Target needs (one for chart lifecycle, one for the
// pod/job introspection Helm doesn't cover).
func newKubeTarget(kubeconfig, kubeContext, namespace string) (*kube.Target, error) {
	settings := helmSettings(kubeconfig, kubeContext, namespace)

	actionCfg := new(action.Configuration)
	logFunc := func(format string, v ...interface{}) {}
	if err := actionCfg.Init(settings.RESTClientGetter(), namespace, os.Getenv("HELM_DRIVER"), logFunc); err != nil {
		return nil, engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "initializing helm action config", err)
	}

	restCfg, err := settings.RESTClientGetter().ToRESTConfig()
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "loading kube rest config", err)
	}

	c, err := client.New(restCfg, client.Options{Scheme: scheme.Scheme})
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "building controller-runtime client", err)
	}

	return kube.NewTarget(c, actionCfg, namespace), nil
}

// kubeconfigOrDefault resolves the effective path the way clientcmd
// does, only so the CLI can print a useful error when it's missing.
func kubeconfigOrDefault(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv("KUBECONFIG"); v != "" {
		return v
	}
	return clientcmd.RecommendedHomeFile
}

func requireFile(path, what string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%s not found at %s: %w", what, path, err)
	}
	return nil
}
