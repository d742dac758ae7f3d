/*
Package collector implements the per-node sampling worker.

A collector registers its control address in the mesh registry and
serves the coordinator's persistent control connection. The connection
doubles as the coordinator's monitor: when the collector dies, the
broken connection is its death notice, and the replacement instance
booted by the coordinator simply re-serves the same listener.

The worker side of the lifecycle:

	init (boot|reboot)  configure the sampler; a reboot keeps leftover
	                    sample files from the previous incarnation
	start_collect       open a fresh sample file, sample every interval
	stop_collect        close the file, making it eligible for pull
	pull                announce each completed file, wait for the
	                    coordinator's receiver address, stream the bytes
	quit                exit the serve loop cleanly
	unload              discard all local sample state
*/
package collector
