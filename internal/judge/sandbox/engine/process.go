package engine

// ProcessConfig controls the host process executor.
type ProcessConfig struct {
	// CgroupRoot is a delegated cgroup v2 directory. Required when EnableCgroup is set.
	CgroupRoot   string `yaml:"cgroupRoot"`
	EnableCgroup bool   `yaml:"enableCgroup"`
	// EnableNetNamespace runs the program in a fresh user and network namespace with no interfaces.
	EnableNetNamespace bool `yaml:"enableNetNamespace"`
	// Path is the PATH handed to the program when Spec.Env does not set one.
	Path string `yaml:"path"`
}

const defaultPath = "/usr/local/bin:/usr/bin:/bin"
