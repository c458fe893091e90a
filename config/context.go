package config

type Context struct {
	Modules []ModuleI
	Config  *Config
}
