package deploy

import "fmt"

// DefaultAgentInstallURL is the install script for the device-management
// agent that the bootstrap payload pulls onto a fresh machine.
const DefaultAgentInstallURL = "https://raw.githubusercontent.com/Openmesh-Network/xnode-manager/main/os/install.sh"

// DefaultHostname is the hostname assigned to newly created machines.
const DefaultHostname = "xnode.openmesh.network"

// BootstrapScript composes the cloud-config payload injected into a new
// machine's user-data. It installs the device-management agent and binds
// it to the owner tag, which the downstream management endpoint uses as
// its trust anchor.
func BootstrapScript(ownerTag string) string {
	return BootstrapScriptWithAgent(ownerTag, DefaultAgentInstallURL)
}

// BootstrapScriptWithAgent is BootstrapScript with a custom agent
// install URL.
func BootstrapScriptWithAgent(ownerTag, agentInstallURL string) string {
	return fmt.Sprintf("#cloud-config\nruncmd:\n - export XNODE_OWNER=%q && curl %s | bash 2>&1 | tee /tmp/xnodeos.log", ownerTag, agentInstallURL)
}
