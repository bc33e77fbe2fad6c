package mpu6050

const (
	DefaultAddress = 0x68
	WhoAmIValue    = 0x68

	RegGyroConfig  = 0x1B
	RegAccelConfig = 0x1C
	RegAccelXoutH  = 0x3B
	RegPwrMgmt1    = 0x6B
	RegWhoAmI      = 0x75

	// accel x/y/z, temp, gyro x/y/z; big-endian words
	BurstLength = 14

	PwrMgmt1Sleep = 0x40
)
