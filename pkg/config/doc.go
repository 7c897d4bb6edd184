/*
Package config loads the sdscompose configuration.

Configuration is a YAML file decoded over Default and checked with struct
tag validation. Every setting the composer needs is carried in Config and
passed to constructors explicitly:

	data_dir: /var/lib/sdscompose
	grouping_key: enabled_backends
	copy_from_remote_cmd: "scp -B %user%@%host%:%file% %temp%"
	copy_to_remote_cmd: "scp -B %temp% %user%@%host%:%file%"
	copy_timeout: 2m
	parallel_hosts: 0
	services:
	  volume:
	    binary: cinder-volume
	    config_file: /etc/cinder/cinder.conf
	    os_user: cinder
	volume_service:
	  endpoint: http://cinder:8776/v2/admin
	  token: ...
	drivers:
	  ceph:
	    rbd_secret_uuid: 457eb676-33da-42ec-9a8c-9293d545c337
*/
package config
