package baremetal

import "gopkg.in/yaml.v3"

// Locked hash for the lab's standard administrative account. Matches the
// image baked by the provisioning pipeline.
const adminPasswdHash = "$6$/O/rvHuhqfc00hDw$3X4ILugPTXw9JTtgWNh16oeFqLcsMOaPwzk7TBxtwm5QXa2vALMC2W7/JToC99ngxpKla80QpVAEs3jA8I0rk0"

type cloudConfig struct {
	SSHPwauth bool              `yaml:"ssh_pwauth"`
	Groups    []string          `yaml:"groups"`
	Users     []cloudConfigUser `yaml:"users"`
}

type cloudConfigUser struct {
	Name              string   `yaml:"name"`
	Groups            string   `yaml:"groups"`
	LockPasswd        bool     `yaml:"lock_passwd"`
	Passwd            string   `yaml:"passwd,omitempty"`
	Sudo              string   `yaml:"sudo"`
	SSHAuthorizedKeys []string `yaml:"ssh_authorized_keys,omitempty"`
}

// renderCloudConfig produces the user-data document stored in each host's
// secret: the administrative account plus the reservation user carrying the
// requester's public key.
func renderCloudConfig(sshKey string) ([]byte, error) {
	cfg := cloudConfig{
		SSHPwauth: true,
		Groups:    []string{"admingroup", "cloud-users"},
		Users: []cloudConfigUser{
			{
				Name:       "restart.admin",
				Groups:     "admingroup",
				LockPasswd: false,
				Passwd:     adminPasswdHash,
				Sudo:       "ALL=(ALL) NOPASSWD:ALL",
			},
			{
				Name:              "prognose",
				Groups:            "cloud-users",
				LockPasswd:        true,
				Sudo:              "ALL=(ALL) NOPASSWD:ALL",
				SSHAuthorizedKeys: []string{sshKey},
			},
		},
	}

	body, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return append([]byte("#cloud-config\n"), body...), nil
}
