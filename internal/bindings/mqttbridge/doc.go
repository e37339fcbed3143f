// Package mqttbridge discovers devices that announce themselves over MQTT.
//
// Devices publish retained JSON announcements to
// hearth/announce/{binding}/{device}. Subscribing to the wildcard delivers
// every retained announcement at once, so an active scan and background
// discovery share a single subscription. Announcements become results of
// type "mqtt:{type}"; an empty payload or status "offline" retracts the
// device.
package mqttbridge
